package gen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"license-authority/pkg/config"
)

var Module = fx.Module("gen",
	fx.Provide(NewSnowflakeNode),
)

// NewSnowflakeNode builds the ID node for this process. Each authority
// replica must run with its own SNOWFLAKE.NODE.
func NewSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.Snowflake.Node)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node %d: %w", cfg.Snowflake.Node, err)
	}
	zap.L().Info("snowflake node ready", zap.Int64("node", cfg.Snowflake.Node))
	return node, nil
}
