package proofstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

var (
	_ Store  = (*Disk)(nil)
	_ Pruner = (*Disk)(nil)
)

// diskRecord is the JSON document persisted per proof.
type diskRecord struct {
	BatchNumber uint64        `json:"batch_number"`
	ProverType  prover.Type   `json:"prover_type"`
	Proof       hexutil.Bytes `json:"proof"`
	StoredAt    time.Time     `json:"stored_at"`
}

// Disk implements Store on the local filesystem, one JSON file per
// (batch, prover type) key. Records are written to a temp file and
// renamed into place, so a record either fully exists or does not.
// Idempotence comes from refusing to replace an existing file.
type Disk struct {
	baseDir string
	log     zerolog.Logger
}

// NewDisk creates the base directory if needed and returns a Disk store.
func NewDisk(baseDir string, log zerolog.Logger) (*Disk, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create proof store directory: %w", err)
	}
	return &Disk{
		baseDir: baseDir,
		log:     log.With().Str("component", "proof-store").Logger(),
	}, nil
}

func (d *Disk) path(batch uint64, t prover.Type) string {
	return filepath.Join(d.baseDir, fmt.Sprintf("%020d-%s.json", batch, t))
}

func (d *Disk) Get(_ context.Context, batch uint64, t prover.Type) ([]byte, bool, error) {
	raw, err := os.ReadFile(d.path(batch, t))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read proof record: %w", err)
	}

	var rec diskRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode proof record: %w", err)
	}
	return rec.Proof, true, nil
}

func (d *Disk) Put(_ context.Context, batch uint64, t prover.Type, proof []byte) error {
	target := d.path(batch, t)
	if _, err := os.Stat(target); err == nil {
		d.log.Debug().
			Uint64("batch", batch).
			Stringer("prover", t).
			Msg("Proof record already present, keeping existing")
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat proof record: %w", err)
	}

	rec := diskRecord{
		BatchNumber: batch,
		ProverType:  t,
		Proof:       proof,
		StoredAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode proof record: %w", err)
	}

	tmp, err := os.CreateTemp(d.baseDir, ".proof-*")
	if err != nil {
		return fmt.Errorf("create temp proof file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write proof record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close proof record: %w", err)
	}

	// A concurrent Put for the same key may have landed between the stat
	// and the rename; first writer wins either way.
	if _, err := os.Stat(target); err == nil {
		os.Remove(tmpName)
		return nil
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit proof record: %w", err)
	}
	return nil
}

func (d *Disk) Delete(_ context.Context, batch uint64, t prover.Type) error {
	err := os.Remove(d.path(batch, t))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete proof record: %w", err)
	}
	return nil
}

func (d *Disk) Keys(_ context.Context) ([]Key, error) {
	entries, err := os.ReadDir(d.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list proof records: %w", err)
	}

	out := make([]Key, 0, len(entries))
	for _, entry := range entries {
		key, ok := parseRecordName(entry.Name())
		if !ok {
			continue
		}
		out = append(out, key)
	}
	return out, nil
}

func (d *Disk) PruneBelow(ctx context.Context, batch uint64) (int, error) {
	keys, err := d.Keys(ctx)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, key := range keys {
		if key.Batch >= batch {
			continue
		}
		if err := d.Delete(ctx, key.Batch, key.Prover); err != nil {
			return pruned, err
		}
		pruned++
	}
	if pruned > 0 {
		d.log.Info().Int("records", pruned).Uint64("below_batch", batch).Msg("Pruned verified proof records")
	}
	return pruned, nil
}

// parseRecordName recovers the key from a "%020d-%s.json" file name.
func parseRecordName(name string) (Key, bool) {
	base, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return Key{}, false
	}
	numPart, typePart, ok := strings.Cut(base, "-")
	if !ok {
		return Key{}, false
	}
	var batch uint64
	if _, err := fmt.Sscanf(numPart, "%d", &batch); err != nil {
		return Key{}, false
	}
	t, err := prover.ParseType(typePart)
	if err != nil {
		return Key{}, false
	}
	return Key{Batch: batch, Prover: t}, true
}
