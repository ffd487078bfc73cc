package milvus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/vectorstore"
)

func TestExpressions(t *testing.T) {
	f := vectorstore.Filter{Owner: "alice", Subject: `Acme "Corp"`}
	assert.Equal(t, `owner == "alice" && subject == "Acme \"Corp\""`, partitionExpr(f))
	assert.Equal(t, `owner == "alice" && subject == "Acme \"Corp\"" && chunk_id in ["a", "b"]`,
		existsExpr(f, []string{"a", "b"}))
}

func TestPrimaryKeyIsPartitioned(t *testing.T) {
	assert.NotEqual(t, primaryKey("alice", "Acme", "h1"), primaryKey("carol", "Acme", "h1"))
	assert.Len(t, primaryKey("alice", "Acme", "h1"), 64)
}
