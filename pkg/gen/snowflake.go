package gen

import (
	"kickback-engine/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewSnowflakeNode),
)

// NewSnowflakeNode builds the id node for SNOWFLAKE.NODE. Every replica needs
// its own node id.
func NewSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.Snowflake.Node)
}
