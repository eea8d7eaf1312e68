package failover

import (
	"errors"
	"io"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestConnError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantTagged bool
	}{
		{
			name: "nil stays nil",
			err:  nil,
		},
		{
			name:       "transport error is tagged",
			err:        io.EOF,
			wantTagged: true,
		},
		{
			name:       "dial error is tagged",
			err:        errors.New("dial tcp 10.0.0.1:6379: connection refused"),
			wantTagged: true,
		},
		{
			name: "missing key reply passes through",
			err:  redis.Nil,
		},
		{
			name: "server reply error passes through",
			err:  redisReplyError("WRONGTYPE Operation against a key holding the wrong kind of value"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := connError(tt.err)

			if tt.err == nil {
				require.NoError(t, got)
				return
			}

			require.Equal(t, tt.wantTagged, errors.Is(got, ErrConnection))
			if !tt.wantTagged {
				require.Equal(t, tt.err, got)
			}
		})
	}
}

// redisReplyError mimics an error parsed off the wire from a server reply.
type redisReplyError string

func (e redisReplyError) Error() string { return string(e) }
func (e redisReplyError) RedisError()   {}

var _ redis.Error = redisReplyError("")
