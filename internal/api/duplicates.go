/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"sync"

	"check-deposit-go/internal/store"

	"github.com/bits-and-blooms/bloom/v3"
)

// DuplicateIndex is a probabilistic prefilter over duplicate keys. A negative
// answer is definitive once the index has been seeded, so the SQL lookup only
// runs for likely duplicates. An unseeded index answers true for every key.
type DuplicateIndex struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	seeded bool
}

func NewDuplicateIndex(expectedItems uint, falsePositiveRate float64) *DuplicateIndex {
	return &DuplicateIndex{filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate)}
}

// Seed adds every complete key.
func (i *DuplicateIndex) Seed(keys []store.DuplicateKey) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, k := range keys {
		if k.Complete() {
			i.filter.AddString(k.String())
		}
	}
	i.seeded = true
}

func (i *DuplicateIndex) Add(key store.DuplicateKey) {
	if !key.Complete() {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.filter.AddString(key.String())
}

// MayContain reports whether key could have been added before.
func (i *DuplicateIndex) MayContain(key store.DuplicateKey) bool {
	if !key.Complete() {
		return false
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.seeded {
		return true
	}
	return i.filter.TestString(key.String())
}
