package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"linkgraph/domain/core/entities"
)

// parseRef parses "type:id" into a reference owned by tenantID.
func parseRef(s, tenantID string) (entities.EntityRef, error) {
	entityType, id, ok := strings.Cut(s, ":")
	if !ok || entityType == "" || id == "" {
		return entities.EntityRef{}, fmt.Errorf("invalid entity %q (expected type:id)", s)
	}
	t := entities.EntityType(strings.ToLower(entityType))
	if !t.IsValid() {
		return entities.EntityRef{}, fmt.Errorf("unknown entity type %q", entityType)
	}
	return entities.NewEntityRef(t, id, tenantID), nil
}

func parseRefs(args []string, tenantID string) ([]entities.EntityRef, error) {
	refs := make([]entities.EntityRef, 0, len(args))
	for _, arg := range args {
		ref, err := parseRef(arg, tenantID)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func parseKinds(values []string) ([]entities.LinkKind, error) {
	if len(values) == 0 {
		return nil, nil
	}
	kinds := make([]entities.LinkKind, 0, len(values))
	for _, v := range values {
		k := entities.LinkKind(strings.ToLower(v))
		if !k.IsValid() {
			return nil, fmt.Errorf("unknown link kind %q", v)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func parseDirection(s string) (entities.Direction, error) {
	if s == "" {
		return "", nil
	}
	d := entities.Direction(strings.ToLower(s))
	if !d.IsValid() {
		return "", fmt.Errorf("unknown direction %q (valid: outgoing, incoming, both)", s)
	}
	return d, nil
}

// parseMetadata decodes a JSON object; an empty string means no metadata.
func parseMetadata(s string) (map[string]interface{}, error) {
	if s == "" {
		return nil, nil
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal([]byte(s), &metadata); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	return metadata, nil
}

func printJSON(w io.Writer, v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
