package app

import (
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// IDGenerator hands out monotonic numeric ids for orders and items and random
// ids for events and checkout attempts.
type IDGenerator interface {
	NextID() int64
	NewUUID() string
}

type snowflakeIDs struct {
	node *snowflake.Node
}

// NewSnowflakeIDs returns a generator backed by a snowflake node. Node ids must
// be unique per running instance.
func NewSnowflakeIDs(node *snowflake.Node) IDGenerator {
	return snowflakeIDs{node: node}
}

func (g snowflakeIDs) NextID() int64 {
	return g.node.Generate().Int64()
}

func (snowflakeIDs) NewUUID() string {
	return uuid.NewString()
}
