package league

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

const teamSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"id": {"type": "string"},
		"name": {"type": "string", "minLength": 1},
		"crestURL": {"type": "string"}
	}
}`

var schemaSources = map[string]string{
	ChatMessages: `{
		"type": "object",
		"required": ["text", "authorId", "authorName"],
		"properties": {
			"text": {"type": "string", "pattern": "\\S"},
			"authorId": {"type": "string"},
			"authorName": {"type": "string"}
		}
	}`,
	Predictions: `{
		"type": "object",
		"required": ["userId", "matchId", "outcome", "submittedAt"],
		"properties": {
			"userId": {"type": "string", "minLength": 1},
			"matchId": {"type": "string", "minLength": 1},
			"outcome": {"enum": ["home", "draw", "away"]},
			"firstScorerId": {"type": "string"},
			"submittedAt": {"type": "string", "format": "date-time"}
		}
	}`,
	Matches: `{
		"type": "object",
		"required": ["homeTeam", "awayTeam", "scheduled", "speculative"],
		"properties": {
			"homeTeam": ` + teamSchema + `,
			"awayTeam": ` + teamSchema + `,
			"scheduled": {"type": "string", "format": "date-time"},
			"speculative": {"type": "boolean"},
			"outcome": {"type": "string"}
		}
	}`,
	News: `{
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"body": {"type": "string"},
			"imageId": {"type": "string"}
		}
	}`,
	Standings: `{
		"type": "object",
		"required": ["clubName", "points"],
		"properties": {
			"clubId": {"type": "string"},
			"clubName": {"type": "string", "minLength": 1},
			"points": {"type": "integer"},
			"played": {"type": "integer", "minimum": 0},
			"wins": {"type": "integer", "minimum": 0},
			"draws": {"type": "integer", "minimum": 0},
			"losses": {"type": "integer", "minimum": 0},
			"goalsFor": {"type": "integer", "minimum": 0},
			"goalsAgainst": {"type": "integer", "minimum": 0}
		}
	}`,
	Clubs: `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"category": {"type": "string"},
			"crestURL": {"type": "string"}
		}
	}`,
	Players: `{
		"type": "object",
		"required": ["name", "clubId"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"clubId": {"type": "string", "minLength": 1},
			"position": {"type": "string"},
			"photoURL": {"type": "string"}
		}
	}`,
	Scorers: `{
		"type": "object",
		"required": ["playerName", "goals"],
		"properties": {
			"playerName": {"type": "string", "minLength": 1},
			"clubName": {"type": "string"},
			"goals": {"type": "integer", "minimum": 0}
		}
	}`,
	Profiles: `{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"email": {"type": "string"},
			"avatar": {"type": "string"},
			"favoriteClub": {"type": "string"},
			"bio": {"type": "string"}
		}
	}`,
}

var schemas = compileSchemas()

func compileSchemas() map[string]*gojsonschema.Schema {
	out := make(map[string]*gojsonschema.Schema, len(schemaSources))
	for coll, src := range schemaSources {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			panic(fmt.Sprintf("league: schema %s: %v", coll, err))
		}
		out[coll] = s
	}
	return out
}

// Known reports whether collection has a schema.
func Known(collection string) bool {
	_, ok := schemas[collection]
	return ok
}

// Validate checks a document body against the schema of its collection.
// Collections without a schema accept any JSON object.
func Validate(collection string, data json.RawMessage) error {
	if len(data) == 0 {
		return invalid("", "empty %s record", collection)
	}
	schema, ok := schemas[collection]
	if !ok {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return invalid("", "%s record is not valid JSON: %v", collection, err)
	}
	if result.Valid() {
		return nil
	}
	first := result.Errors()[0]
	return &ValidationError{Field: first.Field(), Reason: first.Description()}
}
