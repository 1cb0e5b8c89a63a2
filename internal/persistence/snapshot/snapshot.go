// Package snapshot stores a world_info reply on disk so a height index can
// be rebuilt without a live renderer.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"renderbot.ai/internal/protocol"
)

const Version = 1

type Header struct {
	Version  int       `json:"version"`
	Renderer string    `json:"renderer"`
	TakenAt  time.Time `json:"taken_at"`
	Features int       `json:"features"`
}

type WorldV1 struct {
	Header Header `json:"header"`

	Blocks      []FeatureV1 `json:"blocks"`
	Forest      []FeatureV1 `json:"forest"`
	ExtraMeshes []FeatureV1 `json:"extra_meshes"`
}

// FeatureV1 is [x, z, height].
type FeatureV1 [3]float64

// FromWorld captures w as a snapshot taken now from renderer addr.
func FromWorld(addr string, w protocol.WorldInfo) WorldV1 {
	return WorldV1{
		Header: Header{
			Version:  Version,
			Renderer: addr,
			TakenAt:  time.Now().UTC(),
			Features: w.FeatureCount(),
		},
		Blocks:      toV1(w.World.Blocks),
		Forest:      toV1(w.World.Forest),
		ExtraMeshes: toV1(w.World.ExtraMeshes),
	}
}

// World converts the snapshot back into the reply it was taken from.
func (s WorldV1) World() protocol.WorldInfo {
	return protocol.WorldInfo{World: protocol.WorldData{
		Blocks:      fromV1(s.Blocks),
		Forest:      fromV1(s.Forest),
		ExtraMeshes: fromV1(s.ExtraMeshes),
	}}
}

func toV1(in []protocol.Feature) []FeatureV1 {
	out := make([]FeatureV1, 0, len(in))
	for _, f := range in {
		out = append(out, FeatureV1{f.X, f.Z, f.Height})
	}
	return out
}

func fromV1(in []FeatureV1) []protocol.Feature {
	out := make([]protocol.Feature, 0, len(in))
	for _, f := range in {
		out = append(out, protocol.Feature{X: f[0], Z: f[1], Height: f[2]})
	}
	return out
}

func Write(path string, snap WorldV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func Read(path string) (WorldV1, error) {
	var snap WorldV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The header line is duplicated inside the gob body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d unsupported", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	if h.Version == 0 {
		return h, errors.New("snapshot header missing version")
	}
	return h, nil
}
