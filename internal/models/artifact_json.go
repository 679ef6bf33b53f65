package models

import "encoding/json"

// MarshalJSON flattens idx/id alongside the record's display metadata into a
// single JSON object, matching the sidecar shape in spec section 3:
// {idx, id, ...display fields...}.
func (r SidecarRecord) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		flat[k] = v
	}
	flat["idx"] = r.Idx
	flat["id"] = r.ID
	return json.Marshal(flat)
}

// UnmarshalJSON reconstructs a SidecarRecord from the flattened shape,
// pulling idx/id out and leaving everything else as metadata.
func (r *SidecarRecord) UnmarshalJSON(data []byte) error {
	var flat map[string]interface{}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if idx, ok := flat["idx"].(float64); ok {
		r.Idx = int(idx)
	}
	if id, ok := flat["id"].(string); ok {
		r.ID = id
	}
	delete(flat, "idx")
	delete(flat, "id")
	r.Metadata = flat
	return nil
}
