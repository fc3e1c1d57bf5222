// Package schematest provides canonical schema fixtures shared by tests
// across the module.
package schematest

import (
	"testing"

	"github.com/weftdb/weft/schema"
)

// Blog is the reference fixture: every relation kind, a unique constraint,
// literal defaults, and all three generators.
const Blog = `
models: {
	User: {
		fields: {
			id:        {type: "int", id: true, generate: "autoincrement"}
			name:      {type: "string"}
			email:     {type: "string", unique: true}
			createdAt: {type: "time", generate: "now"}
		}
		relations: {
			posts:   {to: "Post", kind: "one-to-many", inverse: "author"}
			profile: {to: "Profile", kind: "one-to-one", inverse: "user"}
		}
	}
	Profile: {
		fields: {
			id:     {type: "int", id: true, generate: "autoincrement"}
			bio:    {type: "string", nullable: true}
			userId: {type: "int", unique: true}
		}
		relations: {
			user: {to: "User", kind: "one-to-one", field: "userId", inverse: "profile"}
		}
	}
	Post: {
		fields: {
			id:        {type: "int", id: true, generate: "autoincrement"}
			title:     {type: "string"}
			content:   {type: "string", nullable: true}
			published: {type: "bool", default: false}
			views:     {type: "int", default: 0}
			authorId:  {type: "int"}
		}
		relations: {
			author:   {to: "User", kind: "many-to-one", field: "authorId", inverse: "posts"}
			comments: {to: "Comment", kind: "one-to-many", inverse: "post"}
			tags:     {to: "Tag", kind: "many-to-many", through: "post_tags", inverse: "posts"}
		}
	}
	Comment: {
		fields: {
			id:       {type: "int", id: true, generate: "autoincrement"}
			body:     {type: "string"}
			postId:   {type: "int"}
			authorId: {type: "int", nullable: true}
		}
		relations: {
			post:   {to: "Post", kind: "many-to-one", field: "postId", inverse: "comments"}
			author: {to: "User", kind: "many-to-one", field: "authorId"}
		}
	}
	Tag: {
		fields: {
			id:   {type: "int", id: true, generate: "autoincrement"}
			name: {type: "string", unique: true}
		}
		relations: {
			posts: {to: "Post", kind: "many-to-many", through: "post_tags", inverse: "tags"}
		}
	}
}
`

// Minimal is a single model with no relations.
const Minimal = `
models: {
	Item: {
		fields: {
			id:   {type: "int", id: true, generate: "autoincrement"}
			name: {type: "string"}
		}
	}
}
`

// Load compiles src, failing the test on any error.
func Load(t testing.TB, src string) *schema.Schema {
	t.Helper()
	s, err := schema.Load(src)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	return s
}
