package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Stage is one stage of a workflow. Keys other than the well-known ones are
// preserved so the stored workflow round-trips unchanged.
type Stage map[string]json.RawMessage

// Workflow is the structured job specification submitted with a start request.
// Only the fields the service inspects are typed; everything else is kept in
// Extra and written back verbatim.
type Workflow struct {
	Stages  []Stage
	ChainID *int64
	Extra   map[string]json.RawMessage
}

func (w *Workflow) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	w.Stages = nil
	w.ChainID = nil
	if st, ok := raw["stages"]; ok {
		if err := json.Unmarshal(st, &w.Stages); err != nil {
			return fmt.Errorf("stages: %w", err)
		}
		delete(raw, "stages")
	}
	if c, ok := raw["chainId"]; ok {
		id, err := parseChainID(c)
		if err != nil {
			return fmt.Errorf("chainId: %w", err)
		}
		w.ChainID = id
		delete(raw, "chainId")
	}
	w.Extra = raw
	return nil
}

func (w Workflow) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(w.Extra)+2)
	for k, v := range w.Extra {
		out[k] = v
	}
	if w.Stages != nil {
		out["stages"] = w.Stages
	}
	if w.ChainID != nil {
		out["chainId"] = *w.ChainID
	}
	return json.Marshal(out)
}

// HasStages reports whether the workflow carried a stages key at all.
func (w *Workflow) HasStages() bool {
	return w.Stages != nil
}

// AlgorithmDID returns stages[0].algorithm.id, or "raw" for inline algorithms.
func (w *Workflow) AlgorithmDID() string {
	if len(w.Stages) == 0 {
		return "raw"
	}
	var algo struct {
		ID string `json:"id"`
	}
	raw, ok := w.Stages[0]["algorithm"]
	if !ok || json.Unmarshal(raw, &algo) != nil || algo.ID == "" {
		return "raw"
	}
	return algo.ID
}

// InputDIDs returns the ids of stage-0 inputs in order, skipping inputs without one.
func (w *Workflow) InputDIDs() []string {
	ids := []string{}
	if len(w.Stages) == 0 {
		return ids
	}
	raw, ok := w.Stages[0]["input"]
	if !ok {
		return ids
	}
	var inputs []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return ids
	}
	for _, in := range inputs {
		v, ok := in["id"]
		if !ok {
			continue
		}
		var id string
		if err := json.Unmarshal(v, &id); err != nil || id == "" {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ComputeSpec is the compute section of a stage.
type ComputeSpec struct {
	Namespace string                     `json:"namespace,omitempty"`
	MaxTime   int64                      `json:"maxtime,omitempty"`
	Resources map[string]any             `json:"resources,omitempty"`
	Extra     map[string]json.RawMessage `json:"-"`
}

func (c *ComputeSpec) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	type plain ComputeSpec
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = ComputeSpec(p)
	delete(raw, "namespace")
	delete(raw, "maxtime")
	delete(raw, "resources")
	c.Extra = raw
	return nil
}

func (c ComputeSpec) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		out[k] = v
	}
	if c.Namespace != "" {
		out["namespace"] = c.Namespace
	}
	if c.MaxTime != 0 {
		out["maxtime"] = c.MaxTime
	}
	if len(c.Resources) > 0 {
		out["resources"] = c.Resources
	}
	return json.Marshal(out)
}

// Compute decodes the compute section of the stage.
func (s Stage) Compute() (ComputeSpec, error) {
	var c ComputeSpec
	raw, ok := s["compute"]
	if !ok {
		return c, nil
	}
	err := json.Unmarshal(raw, &c)
	return c, err
}

// SetCompute replaces the compute section of the stage.
func (s Stage) SetCompute(c ComputeSpec) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	s["compute"] = b
	return nil
}

// Nonce is the caller-supplied nonce. Clients send it either as a JSON string
// or a number; the literal text is what gets appended to the signed message.
type Nonce string

func (n *Nonce) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Nonce(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("nonce must be a string or number")
	}
	*n = Nonce(num.String())
	return nil
}

// ChainID accepts a chain id given as a JSON number or a numeric string.
type ChainID struct {
	Value *int64
}

func (c *ChainID) UnmarshalJSON(data []byte) error {
	id, err := parseChainID(data)
	if err != nil {
		return err
	}
	c.Value = id
	return nil
}

func parseChainID(data []byte) (*int64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chain id %q", s)
	}
	return &v, nil
}
