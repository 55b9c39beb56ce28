package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for discussion observability spans and metrics.
var (
	AttrAssistantName   = attribute.Key("assistant.name")
	AttrAssistantFamily = attribute.Key("assistant.family")

	AttrTaskType   = attribute.Key("task.type")
	AttrTaskRounds = attribute.Key("task.rounds")

	AttrRound        = attribute.Key("discussion.round")
	AttrConsensus    = attribute.Key("discussion.consensus")
	AttrStreamChunks = attribute.Key("assistant.stream_chunks")
)
