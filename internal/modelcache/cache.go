// Package modelcache keeps constructed models resident for the life of the
// process, keyed by model name and resolved device.
//
// Published entries are read without locks. Construction for a key happens
// at most once at a time; concurrent callers for the same key wait for that
// single construction while other keys proceed independently. Failed
// constructions are never stored, so a later request retries.
package modelcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fmueller/voxscribe/internal/metrics"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/whisper"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Key struct {
	Model  string
	Device platform.Device
}

// String renders the key as <model>_<device>.
func (k Key) String() string {
	return k.Model + "_" + string(k.Device)
}

func (k Key) flightKey() string {
	return k.Model + "\x00" + string(k.Device)
}

// DeviceResolver fills in the device when a request does not name one.
type DeviceResolver interface {
	Resolve(requested platform.Device) platform.Device
}

// LoadError reports a failed construction. Every caller waiting on the same
// construction receives the same error.
type LoadError struct {
	Key Key
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %s on %s: %v", e.Key.Model, e.Key.Device, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

var errNilModel = errors.New("loader returned no model")

// Lookup is the outcome of GetOrLoad.
type Lookup struct {
	Model *whisper.LoadedModel
	Key   Key
	// Hit is true when the model was already resident.
	Hit bool
}

type Cache struct {
	loader  whisper.Loader
	devices DeviceResolver
	logger  *zap.Logger

	entries sync.Map
	flights singleflight.Group
	size    atomic.Int64
}

func New(loader whisper.Loader, devices DeviceResolver, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{loader: loader, devices: devices, logger: logger}
}

// GetOrLoad returns the model for (model, device), constructing it on first
// use. The device is resolved exactly once before the key is formed.
//
// Construction is detached from ctx: if the caller gives up, it returns
// ctx's error while the construction keeps going for other waiters and is
// published when it succeeds.
func (c *Cache) GetOrLoad(ctx context.Context, model string, device platform.Device) (Lookup, error) {
	key := Key{Model: model, Device: c.resolve(device)}

	if m, ok := c.get(key); ok {
		metrics.RecordCacheHit()
		return Lookup{Model: m, Key: key, Hit: true}, nil
	}

	ch := c.flights.DoChan(key.flightKey(), func() (any, error) {
		return c.construct(ctx, key)
	})

	select {
	case <-ctx.Done():
		metrics.RecordCacheMiss()
		c.logger.Debug("stopped waiting for model", zap.String("key", key.String()), zap.Error(ctx.Err()))
		return Lookup{Key: key}, fmt.Errorf("waiting for model %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			metrics.RecordCacheMiss()
			return Lookup{Key: key}, res.Err
		}
		out := res.Val.(flightResult)
		if out.published {
			metrics.RecordCacheHit()
		} else {
			metrics.RecordCacheMiss()
		}
		return Lookup{Model: out.model, Key: key, Hit: out.published}, nil
	}
}

// flightResult is what one construction flight hands to its waiters.
type flightResult struct {
	model *whisper.LoadedModel
	// published is set when the entry already existed, so nothing was constructed.
	published bool
}

func (c *Cache) construct(ctx context.Context, key Key) (out flightResult, err error) {
	// A flight that finished between the caller's lookup and DoChan has already published.
	if m, ok := c.get(key); ok {
		return flightResult{model: m, published: true}, nil
	}

	started := time.Now()
	c.logger.Info("loading model", zap.String("model", key.Model), zap.String("device", key.Device.String()))

	defer func() {
		if r := recover(); r != nil {
			out, err = flightResult{}, &LoadError{Key: key, Err: fmt.Errorf("panic during construction: %v", r)}
		}
		metrics.RecordModelLoad(key.Model, key.Device.String(), err, time.Since(started))
		if err != nil {
			c.logger.Warn("model load failed", zap.String("key", key.String()), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		}
	}()

	loaded, err := c.loader.Load(context.WithoutCancel(ctx), key.Model, key.Device)
	if err != nil {
		return flightResult{}, &LoadError{Key: key, Err: err}
	}
	if loaded == nil {
		return flightResult{}, &LoadError{Key: key, Err: errNilModel}
	}

	if _, existed := c.entries.LoadOrStore(key, loaded); !existed {
		metrics.SetLoadedModels(int(c.size.Add(1)))
	}
	c.logger.Info("model loaded", zap.String("key", key.String()), zap.Duration("elapsed", time.Since(started)))
	return flightResult{model: loaded}, nil
}

func (c *Cache) get(key Key) (*whisper.LoadedModel, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*whisper.LoadedModel), true
}

func (c *Cache) resolve(device platform.Device) platform.Device {
	if c.devices == nil {
		if device == "" {
			return platform.DeviceCPU
		}
		return device
	}
	return c.devices.Resolve(device)
}

// Loaded returns a sorted snapshot of resident keys.
func (c *Cache) Loaded() []Key {
	keys := make([]Key, 0, c.size.Load())
	c.entries.Range(func(k, _ any) bool {
		keys = append(keys, k.(Key))
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Model != keys[j].Model {
			return keys[i].Model < keys[j].Model
		}
		return keys[i].Device < keys[j].Device
	})
	return keys
}

func (c *Cache) Len() int {
	return int(c.size.Load())
}

// Warm loads models ahead of traffic. Failures are logged and joined.
func (c *Cache) Warm(ctx context.Context, models []string, device platform.Device) error {
	var errs []error
	for _, name := range models {
		lookup, err := c.GetOrLoad(ctx, name, device)
		if err != nil {
			c.logger.Warn("preload failed", zap.String("model", name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		c.logger.Info("model preloaded", zap.String("key", lookup.Key.String()))
	}
	return errors.Join(errs...)
}
