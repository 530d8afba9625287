package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrTopic     = attribute.Key("coldstore.topic")
	AttrPartition = attribute.Key("coldstore.partition")
)
