package domain

import "time"

// TimelineEvent — запись аудита: одно доменное событие агрегата.
type TimelineEvent struct {
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Occurred      time.Time
}
