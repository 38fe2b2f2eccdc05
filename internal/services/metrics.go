package services

import "github.com/prometheus/client_golang/prometheus"

// Domain counters. HTTP-level metrics live in the middleware package.
var (
	accountsRegistered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "accounts_registered_total",
		Help:      "Accounts created through registration.",
	})

	verificationMailFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "verification_mail_failures_total",
		Help:      "Verification emails that could not be sent.",
	})

	// outcome: created|auto_accepted|accepted
	connectionRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "connection_requests_total",
		Help:      "Connection requests by outcome.",
	}, []string{"outcome"})

	// kind: text|file
	messagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "messages_sent_total",
		Help:      "Messages appended to chats.",
	}, []string{"kind"})

	chatsReconciled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "chats_reconciled_total",
		Help:      "Duplicate chats removed by reconciliation.",
	})
)

func init() {
	prometheus.MustRegister(
		accountsRegistered,
		verificationMailFailures,
		connectionRequests,
		messagesSent,
		chatsReconciled,
	)
}
