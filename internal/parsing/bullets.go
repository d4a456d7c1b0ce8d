package parsing

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jonathan/letterlab/internal/llm"
	"github.com/jonathan/letterlab/internal/schemas"
	"github.com/jonathan/letterlab/internal/types"
)

// ParseBullets extracts the three generated bullets from a model response.
// The canonical shape is {"bullets":[{"text","rationale"}...]}; the keyed
// {"bullet_points":{"BP_1":..},"rationales":{"R_1":..}} shape is also accepted.
func ParseBullets(raw string) ([]types.Bullet, error) {
	block, err := ExtractJSONBlock(raw)
	if err != nil {
		return nil, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(block), &probe); err != nil {
		return nil, &ParseError{Message: "bullet output is not a JSON object", Cause: err}
	}
	if _, ok := probe["bullets"]; !ok {
		if _, keyed := probe["bullet_points"]; keyed {
			return parseKeyedBullets(block)
		}
	}

	if err := schemas.Validate(schemas.BulletSet, block); err != nil {
		return nil, &ParseError{Message: "bullet output failed schema validation", Cause: err}
	}

	var set types.BulletSet
	if err := json.Unmarshal([]byte(block), &set); err != nil {
		return nil, &ParseError{Message: "failed to unmarshal bullets", Cause: err}
	}

	entries := set.Bullets
	if len(entries) > types.BulletSlotCount {
		entries = entries[:types.BulletSlotCount]
	}
	return toBullets(entries)
}

func parseKeyedBullets(block string) ([]types.Bullet, error) {
	if err := schemas.Validate(schemas.KeyedBullets, block); err != nil {
		return nil, &ParseError{Message: "keyed bullet output failed schema validation", Cause: err}
	}

	var keyed types.KeyedBullets
	if err := json.Unmarshal([]byte(block), &keyed); err != nil {
		return nil, &ParseError{Message: "failed to unmarshal keyed bullets", Cause: err}
	}
	if !llm.BulletKeys(keyed.BulletPoints) {
		return nil, &ParseError{Message: "bullet_points keys must start with BP_"}
	}
	if !llm.RationaleKeys(keyed.Rationales) {
		return nil, &ParseError{Message: "rationales keys must start with R_"}
	}

	numbers := make([]int, 0, len(keyed.BulletPoints))
	for key := range keyed.BulletPoints {
		n, err := strconv.Atoi(strings.TrimPrefix(key, "BP_"))
		if err != nil {
			return nil, &ParseError{Message: fmt.Sprintf("bullet key %q is not numbered", key)}
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	if len(numbers) > types.BulletSlotCount {
		numbers = numbers[:types.BulletSlotCount]
	}

	entries := make([]types.BulletContent, 0, len(numbers))
	for _, n := range numbers {
		entries = append(entries, types.BulletContent{
			Text:      keyed.BulletPoints["BP_"+strconv.Itoa(n)],
			Rationale: keyed.Rationales["R_"+strconv.Itoa(n)],
		})
	}
	return toBullets(entries)
}

// toBullets keeps well-formed entries and requires exactly three of them.
func toBullets(entries []types.BulletContent) ([]types.Bullet, error) {
	bullets := make([]types.Bullet, 0, len(entries))
	for _, e := range entries {
		text := strings.TrimSpace(e.Text)
		rationale := strings.TrimSpace(e.Rationale)
		if text == "" || rationale == "" {
			continue
		}
		bullets = append(bullets, types.Bullet{Index: len(bullets), Text: text, Rationale: rationale})
	}

	if len(bullets) != types.BulletSlotCount {
		return nil, &ParseError{Message: fmt.Sprintf("Expected %d bullets, got %d", types.BulletSlotCount, len(bullets))}
	}
	return bullets, nil
}

// ParseRegeneratedBullet extracts a single rewritten bullet, {"bullet":{"text","rationale"}}.
func ParseRegeneratedBullet(raw string) (types.BulletContent, error) {
	block, err := ExtractJSONBlock(raw)
	if err != nil {
		return types.BulletContent{}, err
	}
	if err := schemas.Validate(schemas.RegeneratedBullet, block); err != nil {
		return types.BulletContent{}, &ParseError{Message: "regenerated bullet failed schema validation", Cause: err}
	}

	var out types.RegeneratedBullet
	if err := json.Unmarshal([]byte(block), &out); err != nil {
		return types.BulletContent{}, &ParseError{Message: "failed to unmarshal regenerated bullet", Cause: err}
	}
	out.Bullet.Text = strings.TrimSpace(out.Bullet.Text)
	out.Bullet.Rationale = strings.TrimSpace(out.Bullet.Rationale)
	if out.Bullet.Text == "" || out.Bullet.Rationale == "" {
		return types.BulletContent{}, &ParseError{Message: "regenerated bullet is missing text or rationale"}
	}
	return out.Bullet, nil
}
