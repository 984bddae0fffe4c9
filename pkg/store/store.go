// Package store persists instrument state in a bbolt database: typed
// settings by category/key, calibration history per channel, saved gas
// mixes, and a system event log.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/magnus188/trimix-analyzer/pkg/sensor"
)

const (
	settingsBucket    = "settings"
	calibrationBucket = "calibration_history"
	gasMixBucket      = "gas_mixes"
	eventsBucket      = "system_events"
)

// Store wraps the bbolt database.
type Store struct {
	db  *bolt.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path, ensures all
// buckets exist, and seeds default settings on first run.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{settingsBucket, calibrationBucket, gasMixBucket, eventsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, log: log}
	if err := s.seedDefaults(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// setting is the stored envelope. The explicit type tag makes values
// round-trip exactly: a bool stays a bool, a float stays a float.
type setting struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Set persists a setting under category/key. Supported value types are
// bool, int, float64, and string.
func (s *Store) Set(category, key string, value any) error {
	var typ string
	switch value.(type) {
	case bool:
		typ = "bool"
	case int:
		typ = "int"
	case float64:
		typ = "float"
	case string:
		typ = "string"
	default:
		return fmt.Errorf("unsupported setting type %T for %s/%s", value, category, key)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal setting %s/%s: %w", category, key, err)
	}
	data, err := json.Marshal(setting{Type: typ, Value: raw})
	if err != nil {
		return fmt.Errorf("marshal setting envelope %s/%s: %w", category, key, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket([]byte(settingsBucket)).CreateBucketIfNotExists([]byte(category))
		if err != nil {
			return fmt.Errorf("create settings category %s: %w", category, err)
		}
		return b.Put([]byte(key), data)
	})
}

// GetBool returns the stored bool, or def when missing or mistyped.
func (s *Store) GetBool(category, key string, def bool) bool {
	v := def
	s.getSetting(category, key, "bool", &v)
	return v
}

// GetInt returns the stored int, or def when missing or mistyped.
func (s *Store) GetInt(category, key string, def int) int {
	v := def
	s.getSetting(category, key, "int", &v)
	return v
}

// GetFloat returns the stored float, or def when missing or mistyped.
func (s *Store) GetFloat(category, key string, def float64) float64 {
	v := def
	s.getSetting(category, key, "float", &v)
	return v
}

// GetString returns the stored string, or def when missing or mistyped.
func (s *Store) GetString(category, key string, def string) string {
	v := def
	s.getSetting(category, key, "string", &v)
	return v
}

func (s *Store) getSetting(category, key, wantType string, out any) {
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(settingsBucket)).Bucket([]byte(category))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		var env setting
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("unmarshal setting envelope: %w", err)
		}
		if env.Type != wantType {
			return fmt.Errorf("setting %s/%s has type %s, want %s", category, key, env.Type, wantType)
		}
		return json.Unmarshal(env.Value, out)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("category", category).Str("key", key).Msg("reading setting")
	}
}

// seedDefaults writes first-run settings without overwriting existing ones.
func (s *Store) seedDefaults() error {
	defaults := map[string]map[string]any{
		"sensors": {
			"calibration_interval_days": 30,
			"auto_calibration_reminder": true,
			"o2_calibration_offset":     0.0,
			"he_calibration_offset":     0.0,
		},
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		for category, kv := range defaults {
			b, err := tx.Bucket([]byte(settingsBucket)).CreateBucketIfNotExists([]byte(category))
			if err != nil {
				return fmt.Errorf("create settings category %s: %w", category, err)
			}
			for key, value := range kv {
				if b.Get([]byte(key)) != nil {
					continue
				}
				var typ string
				switch value.(type) {
				case bool:
					typ = "bool"
				case int:
					typ = "int"
				case float64:
					typ = "float"
				case string:
					typ = "string"
				}
				raw, err := json.Marshal(value)
				if err != nil {
					return err
				}
				data, err := json.Marshal(setting{Type: typ, Value: raw})
				if err != nil {
					return err
				}
				if err := b.Put([]byte(key), data); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// CalibrationRecord is one completed calibration run. Immutable once
// written.
type CalibrationRecord struct {
	Channel            sensor.Channel `json:"channel"`
	Timestamp          time.Time      `json:"timestamp"`
	RawAverage         float64        `json:"raw_average"`
	SampleCount        int            `json:"sample_count"`
	AmbientTemperature *float64       `json:"ambient_temperature,omitempty"`
	Notes              string         `json:"notes,omitempty"`
}

// RecordCalibration appends a calibration record for a channel.
func (s *Store) RecordCalibration(ch sensor.Channel, rawAverage float64, sampleCount int, ambientTemp *float64, notes string) error {
	rec := CalibrationRecord{
		Channel:            ch,
		Timestamp:          time.Now(),
		RawAverage:         rawAverage,
		SampleCount:        sampleCount,
		AmbientTemperature: ambientTemp,
		Notes:              notes,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal calibration record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket([]byte(calibrationBucket)).CreateBucketIfNotExists([]byte(rec.Channel))
		if err != nil {
			return fmt.Errorf("create calibration bucket %s: %w", rec.Channel, err)
		}
		// RFC3339Nano keys sort chronologically.
		return b.Put([]byte(rec.Timestamp.UTC().Format(time.RFC3339Nano)), data)
	})
}

// LastCalibration returns the most recent calibration timestamp for a
// channel. ok is false when the channel has never been calibrated.
func (s *Store) LastCalibration(ch sensor.Channel) (ts time.Time, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(calibrationBucket)).Bucket([]byte(ch))
		if b == nil {
			return nil
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return nil
		}
		var rec CalibrationRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal calibration record: %w", err)
		}
		ts = rec.Timestamp
		ok = true
		return nil
	})
	return ts, ok, err
}

// CalibrationHistory returns up to limit records for a channel, newest
// first. limit <= 0 means no limit.
func (s *Store) CalibrationHistory(ch sensor.Channel, limit int) ([]CalibrationRecord, error) {
	var out []CalibrationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(calibrationBucket)).Bucket([]byte(ch))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var rec CalibrationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal calibration record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// GasMix is one saved analysis result.
type GasMix struct {
	Timestamp time.Time `json:"timestamp"`
	O2        float64   `json:"o2"`
	He        float64   `json:"he"`
	N2        float64   `json:"n2"`
	Notes     string    `json:"notes,omitempty"`
}

// SaveGasMix appends an analyzed mix to the log.
func (s *Store) SaveGasMix(mix GasMix) error {
	if mix.Timestamp.IsZero() {
		mix.Timestamp = time.Now()
	}
	data, err := json.Marshal(mix)
	if err != nil {
		return fmt.Errorf("marshal gas mix: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(gasMixBucket)).Put([]byte(mix.Timestamp.UTC().Format(time.RFC3339Nano)), data)
	})
}

// GasMixHistory returns up to limit saved mixes, newest first.
func (s *Store) GasMixHistory(limit int) ([]GasMix, error) {
	var out []GasMix
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(gasMixBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var mix GasMix
			if err := json.Unmarshal(v, &mix); err != nil {
				return fmt.Errorf("unmarshal gas mix: %w", err)
			}
			out = append(out, mix)
		}
		return nil
	})
	return out, err
}

// LogEvent appends a system event (startup, calibration, factory reset)
// to the audit trail.
func (s *Store) LogEvent(eventType string, data map[string]any) error {
	event := struct {
		Type      string         `json:"type"`
		Timestamp time.Time      `json:"timestamp"`
		Data      map[string]any `json:"data,omitempty"`
	}{Type: eventType, Timestamp: time.Now(), Data: data}

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(eventsBucket)).Put([]byte(event.Timestamp.UTC().Format(time.RFC3339Nano)), raw)
	})
}
