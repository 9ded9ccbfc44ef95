package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		name string
		list string
		want []string
	}{
		{name: "empty", list: "", want: []string{}},
		{name: "single", list: "localhost:9092", want: []string{"localhost:9092"}},
		{name: "spaces and blanks", list: " kafka-1:9092, ,kafka-2:9092 ,", want: []string{"kafka-1:9092", "kafka-2:9092"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseBrokers(tt.list))
		})
	}
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, "stepflow-test", ParseBrokers(""))
	require.ErrorIs(t, err, ErrNoBrokers)
}
