package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"prismwell/server/internal/net/proto"
)

// wireFrames gathers every frame exchanged over /ws so a single reflection
// pass captures the whole protocol.
type wireFrames struct {
	Hello          proto.HelloV1          `json:"id"`
	FullState      proto.FullStateV1      `json:"fullState"`
	ParticleUpdate proto.ParticleUpdateV1 `json:"particleUpdate"`
	PlayerUpdate   proto.PlayerUpdateV1   `json:"playerUpdate"`
	PlayerList     proto.PlayerListV1     `json:"players"`
	SystemMessage  proto.SystemMessageV1  `json:"systemMessage"`
	Client         proto.ClientMessage    `json:"client"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schema := buildSchema()

	if err := writeSchema(outPath, schema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(wireFrames))
	schema.Title = "Prismwell Wire Protocol"
	schema.Description = "Validates the JSON frames exchanged over the /ws endpoint"
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
