package mockapi

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the in-memory data set served by the mock API.
type Catalog struct {
	Songs  []ItemDTO `yaml:"songs"`
	Albums []ItemDTO `yaml:"albums"`
}

// LoadCatalog reads a YAML fixture with top-level songs and albums lists.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	if len(c.Songs) == 0 && len(c.Albums) == 0 {
		return nil, fmt.Errorf("catalog %s is empty", path)
	}
	return &c, nil
}

// DefaultCatalog returns a small generated catalog: albums albums with
// perAlbum songs each.
func DefaultCatalog(albums, perAlbum int) *Catalog {
	c := &Catalog{}
	id := uint(1)
	for a := 1; a <= albums; a++ {
		c.Albums = append(c.Albums, ItemDTO{
			ID:          uint(a),
			Name:        fmt.Sprintf("Album %02d", a),
			PicFilePath: fmt.Sprintf("uploads/albums/%d.png", a),
		})
		for s := 1; s <= perAlbum; s++ {
			c.Songs = append(c.Songs, ItemDTO{
				ID:            id,
				Name:          fmt.Sprintf("Track %02d-%02d", a, s),
				AudioFilePath: fmt.Sprintf("uploads/songs/%d.mid", id),
				AlbumID:       uint(a),
			})
			id++
		}
	}
	return c
}

// page filters items by a case-insensitive name substring and returns the
// requested 1-based page together with the filtered total.
func page(items []ItemDTO, pageNum, pageSize int, search string) ([]ItemDTO, int) {
	search = strings.ToLower(strings.TrimSpace(search))
	filtered := items
	if search != "" {
		filtered = nil
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Name), search) {
				filtered = append(filtered, it)
			}
		}
	}

	total := len(filtered)
	start := (pageNum - 1) * pageSize
	if start >= total {
		return []ItemDTO{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	out := make([]ItemDTO, end-start)
	copy(out, filtered[start:end])
	return out, total
}

// rank scores every item against the query bytes. Scores are stable for a
// given query, so the same upload always yields the same ranking.
func rank(items []ItemDTO, query []byte, minScore float64, limit int) []ItemDTO {
	var out []ItemDTO
	for _, it := range items {
		score := similarity(query, it.ID)
		if score < minScore {
			continue
		}
		it.SimilarityScore = &score
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].SimilarityScore > *out[j].SimilarityScore
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func similarity(query []byte, id uint) float64 {
	h := fnv.New64a()
	h.Write(query)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	h.Write(buf[:])
	return float64(h.Sum64()%10000) / 10000
}
