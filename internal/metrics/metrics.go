// Licensed to LinDB under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. LinDB licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package metrics exposes the scheduler and resolver statistics
// (spec.md §1's "metrics exporters" collaborator) as prometheus
// instruments. The core never serves them over HTTP itself (spec.md
// §1 Non-goals: serving HTTP); an external collector scrapes whatever
// registry the caller wires these into.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Concurrent holds the task-processor counters, grounded on the
// teacher's metrics.ConcurrentStatistics shape (TasksConsumed,
// TasksPanic, WorkersAlive, ...), generalized to per-processor labels.
type Concurrent struct {
	TasksCompleted *prometheus.CounterVec
	TasksPanicked  *prometheus.CounterVec
	CoroAlive      *prometheus.GaugeVec
}

// NewConcurrent registers the concurrent-scheduler metric family
// against reg and returns the handle used to update it.
func NewConcurrent(reg prometheus.Registerer) *Concurrent {
	c := &Concurrent{
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corerun",
			Subsystem: "scheduler",
			Name:      "tasks_completed_total",
			Help:      "Tasks that reached a terminal state, by processor.",
		}, []string{"processor"}),
		TasksPanicked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corerun",
			Subsystem: "scheduler",
			Name:      "tasks_panicked_total",
			Help:      "Tasks whose body panicked, by processor.",
		}, []string{"processor"}),
		CoroAlive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "corerun",
			Subsystem: "scheduler",
			Name:      "coro_alive",
			Help:      "Currently acquired coroutine permits, by pool.",
		}, []string{"pool"}),
	}
	reg.MustRegister(c.TasksCompleted, c.TasksPanicked, c.CoroAlive)
	return c
}

// Resolver holds the DNS resolver counters.
type Resolver struct {
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	ServfailTotal prometheus.Counter
	NotResolved   prometheus.Counter
}

// NewResolver registers the resolver metric family against reg.
func NewResolver(reg prometheus.Registerer) *Resolver {
	r := &Resolver{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corerun", Subsystem: "dns", Name: "cache_hits_total",
			Help: "Resolutions served from the TTL cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corerun", Subsystem: "dns", Name: "cache_misses_total",
			Help: "Resolutions requiring a network query.",
		}),
		ServfailTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corerun", Subsystem: "dns", Name: "servfail_total",
			Help: "SERVFAIL answers observed across all queries.",
		}),
		NotResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corerun", Subsystem: "dns", Name: "not_resolved_total",
			Help: "Resolutions that failed for both A and AAAA.",
		}),
	}
	reg.MustRegister(r.CacheHits, r.CacheMisses, r.ServfailTotal, r.NotResolved)
	return r
}
