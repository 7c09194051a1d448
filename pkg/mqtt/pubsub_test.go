package mqtt_test

import (
	"log/slog"
	"testing"

	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc    string
		prefix  string
		reports string
		stop    string
		status  string
	}{
		{
			desc:    "prefixed",
			prefix:  "cohort",
			reports: "cohort/models/m1/reports",
			stop:    "cohort/models/+/stop",
			status:  "cohort/clients/c1/status",
		},
		{
			desc:    "slashes trimmed",
			prefix:  "/lab/",
			reports: "lab/models/m1/reports",
			stop:    "lab/models/+/stop",
			status:  "lab/clients/c1/status",
		},
		{
			desc:    "no prefix",
			reports: "models/m1/reports",
			stop:    "models/+/stop",
			status:  "clients/c1/status",
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			topics := mqtt.Config{TopicPrefix: tc.prefix}.Topics()
			assert.Equal(t, tc.reports, topics.Reports("m1"))
			assert.Equal(t, tc.stop, topics.StopFilter())
			assert.Equal(t, tc.status, topics.Status("c1"))
		})
	}
}

func TestParseModel(t *testing.T) {
	t.Parallel()

	topics := mqtt.NewTopics("cohort")
	cases := []struct {
		desc  string
		topic string
		id    string
		event string
		ok    bool
	}{
		{desc: "stop", topic: "cohort/models/m1/stop", id: "m1", event: mqtt.EventStop, ok: true},
		{desc: "fitted", topic: topics.Model("m2", mqtt.EventFitted), id: "m2", event: mqtt.EventFitted, ok: true},
		{desc: "other prefix", topic: "lab/models/m1/stop"},
		{desc: "nested id", topic: "cohort/models/a/b/stop"},
		{desc: "empty id", topic: "cohort/models//stop"},
		{desc: "missing event", topic: "cohort/models/m1"},
		{desc: "prefix only", topic: "cohort/models"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			id, event, ok := topics.ParseModel(tc.topic)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.id, id)
			assert.Equal(t, tc.event, event)
		})
	}
}

func TestNewPubSubEmptyClientID(t *testing.T) {
	t.Parallel()

	_, err := mqtt.NewPubSub(mqtt.Config{URL: "tcp://localhost:1883"}, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}
