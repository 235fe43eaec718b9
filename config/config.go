// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config parses execution configuration for the adapter. This
// package should not take dependencies on other parts of the module.
//
// A configuration file holds one or more named variants, each a complete
// set of execution characteristics:
//
//	version: 1
//	default: batch
//
//	batch:
//	  bundle_timeout: 10m
//	  metrics_namespace: fuselage
//
//	quick:
//	  bundle_timeout: 30s
//
// Unset fields keep their defaults; unknown fields are an error.
package config

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

// Characteristic is one variant's execution configuration. The zero
// value is not the default; use DefaultCharacteristic.
type Characteristic struct {
	// BundleTimeout bounds one partition call end to end. Zero disables
	// the deadline.
	BundleTimeout time.Duration
	// MetricsNamespace prefixes the exported metric names.
	MetricsNamespace string
}

// DefaultCharacteristic returns the configuration used when no variant
// is selected or a variant leaves fields unset.
func DefaultCharacteristic() Characteristic {
	return Characteristic{
		BundleTimeout:    0,
		MetricsNamespace: "fuselage",
	}
}

// rawCharacteristic is the YAML shape of a variant. Fields are untyped
// so values like "30s", 30, or 1m all coerce to a duration.
type rawCharacteristic struct {
	BundleTimeout    any `yaml:"bundle_timeout"`
	MetricsNamespace any `yaml:"metrics_namespace"`
}

// file is the struct configs are decoded into by YAML.
type file struct {
	Version  int
	Default  string
	Variants map[string]yaml.Node `yaml:",inline"`
}

// Registry holds the parsed variants of one configuration file.
type Registry struct {
	variants    map[string]Characteristic
	defaultName string

	// cached names
	variantIDs []string
}

// LoadFromYaml eagerly parses a configuration and validates every
// variant, so errors surface at load time rather than at use.
func LoadFromYaml(in []byte) (*Registry, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewBuffer(in))
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	r := &Registry{
		variants:    make(map[string]Characteristic, len(f.Variants)),
		defaultName: f.Default,
	}
	for name, node := range f.Variants {
		c, err := decodeVariant(node)
		if err != nil {
			return nil, fmt.Errorf("variant %v: %w", name, err)
		}
		r.variants[name] = c
	}
	if f.Default != "" {
		if _, ok := r.variants[f.Default]; !ok {
			return nil, fmt.Errorf("default names unknown variant %v", f.Default)
		}
	}

	r.variantIDs = maps.Keys(r.variants)
	sort.Strings(r.variantIDs)
	return r, nil
}

// decodeVariant strictly decodes one variant node and coerces its fields
// onto the defaults.
func decodeVariant(node yaml.Node) (Characteristic, error) {
	c := DefaultCharacteristic()

	// Re-encode then decode with known fields on, so typos in variant
	// bodies fail at load.
	b, err := yaml.Marshal(node)
	if err != nil {
		return c, fmt.Errorf("re-encoding variant: %w", err)
	}
	strict := yaml.NewDecoder(bytes.NewBuffer(b))
	strict.KnownFields(true)
	var raw rawCharacteristic
	if err := strict.Decode(&raw); err != nil {
		return c, err
	}

	if raw.BundleTimeout != nil {
		d, err := cast.ToDurationE(raw.BundleTimeout)
		if err != nil {
			return c, fmt.Errorf("bundle_timeout: %w", err)
		}
		if d < 0 {
			return c, fmt.Errorf("bundle_timeout is negative: %v", d)
		}
		c.BundleTimeout = d
	}
	if raw.MetricsNamespace != nil {
		s, err := cast.ToStringE(raw.MetricsNamespace)
		if err != nil {
			return c, fmt.Errorf("metrics_namespace: %w", err)
		}
		c.MetricsNamespace = s
	}
	return c, nil
}

// Variants returns the IDs of all loaded variants.
func (r *Registry) Variants() []string {
	return r.variantIDs
}

// Variant returns the named variant's characteristics.
func (r *Registry) Variant(name string) (Characteristic, bool) {
	c, ok := r.variants[name]
	return c, ok
}

// Default returns the file's default variant, or DefaultCharacteristic
// when the file names none.
func (r *Registry) Default() Characteristic {
	if c, ok := r.variants[r.defaultName]; ok {
		return c
	}
	return DefaultCharacteristic()
}
