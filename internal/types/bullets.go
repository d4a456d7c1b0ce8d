package types

// BulletContent is the text/rationale pair the model produces for a bullet.
type BulletContent struct {
	Text      string `json:"text"`
	Rationale string `json:"rationale"`
}

// Bullet is a generated bullet bound to its slot index.
type Bullet struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Rationale string `json:"rationale"`
}

// BulletSet is the canonical model output for bullet generation (wrapper for schema)
type BulletSet struct {
	Bullets []BulletContent `json:"bullets"`
}

// RegeneratedBullet is the model output for a single bullet rewrite (wrapper for schema)
type RegeneratedBullet struct {
	Bullet BulletContent `json:"bullet"`
}

// KeyedBullets is the earlier keyed output shape, e.g. {"BP_1": "..."} and {"R_1": "..."}.
type KeyedBullets struct {
	BulletPoints map[string]string `json:"bullet_points"`
	Rationales   map[string]string `json:"rationales"`
}

// HistoryEntry is one past iteration as shown to the regeneration prompt.
type HistoryEntry struct {
	IterationNumber int    `json:"iteration_number,omitempty"`
	Text            string `json:"text"`
	Rationale       string `json:"rationale,omitempty"`
	Rating          *int   `json:"rating,omitempty"`
	Feedback        string `json:"feedback,omitempty"`
}
