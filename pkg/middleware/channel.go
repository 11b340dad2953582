package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const HeaderAPIKey = "X-Api-Key"

// Sale channels reported by the intake.
const (
	ChannelPOS     = "pos"
	ChannelOnline  = "online"
	ChannelPartner = "partner"
	ChannelAPI     = "api"
)

// Key prefixes issued per integration. Unknown keys count as plain API calls.
var keyPrefixes = []struct {
	prefix  string
	channel string
}{
	{"pos_", ChannelPOS},
	{"web_", ChannelOnline},
	{"partner_", ChannelPartner},
}

type channelCtxKey struct{}

func channelFor(apiKey string) string {
	for _, p := range keyPrefixes {
		if strings.HasPrefix(apiKey, p.prefix) {
			return p.channel
		}
	}
	return ChannelAPI
}

// Channel tags the request context with the sale channel of the API key.
func Channel() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithChannel(c.Request.Context(), channelFor(c.GetHeader(HeaderAPIKey)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func WithChannel(ctx context.Context, ch string) context.Context {
	return context.WithValue(ctx, channelCtxKey{}, ch)
}

func GetChannel(ctx context.Context) string {
	if ch, ok := ctx.Value(channelCtxKey{}).(string); ok && ch != "" {
		return ch
	}
	return ChannelAPI
}
