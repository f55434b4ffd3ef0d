package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Environment is a registered execution namespace and its last announced status.
type Environment struct {
	Namespace string            `db:"namespace" json:"namespace"`
	Status    EnvironmentStatus `db:"status"    json:"status"`
	LastPing  time.Time         `db:"lastping"  json:"lastPing"`
}

// EnvironmentStatus is the capability blob an environment announces. Only the
// chain allow-list is interpreted; every other key is kept as announced.
type EnvironmentStatus struct {
	AllowedChainID ChainIDList
	Extra          map[string]json.RawMessage
}

func (s *EnvironmentStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = EnvironmentStatus{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["allowedChainId"]; ok {
		if err := json.Unmarshal(v, &s.AllowedChainID); err != nil {
			return fmt.Errorf("allowedChainId: %w", err)
		}
		delete(raw, "allowedChainId")
	}
	s.Extra = raw
	return nil
}

func (s EnvironmentStatus) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+1)
	for k, v := range s.Extra {
		out[k] = v
	}
	if len(s.AllowedChainID) > 0 {
		out["allowedChainId"] = s.AllowedChainID
	}
	return json.Marshal(out)
}

// AcceptsChain reports whether the environment may run jobs for chainID.
// An empty allow-list accepts every chain. A missing chainID is only
// accepted by environments without an allow-list.
func (s EnvironmentStatus) AcceptsChain(chainID *int64) bool {
	if len(s.AllowedChainID) == 0 {
		return true
	}
	if chainID == nil {
		return false
	}
	for _, c := range s.AllowedChainID {
		if c == *chainID {
			return true
		}
	}
	return false
}

// ChainIDList decodes either a single chain id or a list of them.
type ChainIDList []int64

func (l *ChainIDList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] != '[' {
		id, err := parseChainID(data)
		if err != nil {
			return err
		}
		if id == nil {
			*l = nil
			return nil
		}
		*l = ChainIDList{*id}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(ChainIDList, 0, len(items))
	for _, item := range items {
		id, err := parseChainID(item)
		if err != nil {
			return err
		}
		if id != nil {
			out = append(out, *id)
		}
	}
	*l = out
	return nil
}
