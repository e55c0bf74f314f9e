package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iago/food-search-pipeline/internal/config"
)

func TestBrokerURI(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.BrokerConfig
		want string
	}{
		{
			name: "defaults",
			cfg:  config.BrokerConfig{HostName: "rabbit", Port: 5672, UserName: "guest", Password: "guest"},
			want: "amqp://rabbit/",
		},
		{
			name: "credentials port and vhost",
			cfg:  config.BrokerConfig{HostName: "rabbit", Port: 5673, UserName: "app", Password: "pw", VHost: "orders"},
			want: "amqp://app:pw@rabbit:5673/orders",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BrokerURI(tt.cfg))
		})
	}
}
