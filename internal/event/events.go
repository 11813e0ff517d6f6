// Package event defines the envelopes flowing through the pipeline
// inbox. Every event carries a monotonic sequence number assigned at
// ingestion and the exchange timestamp.
package event

import (
	"microflow/internal/domain"
	"microflow/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvTick Type = iota + 1
	EvBook
	EvSystemHalt
)

// Event is the interface for all pipeline events.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq uint64          `json:"seq"`
	Ts  quant.TimeStamp `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }

// TickEvent carries one trade print.
type TickEvent struct {
	BaseEvent
	Symbol string      `json:"symbol"`
	Tick   domain.Tick `json:"tick"`
}

func (e TickEvent) GetType() Type { return EvTick }

// BookEvent carries one order-book snapshot. The snapshot is owned by
// downstream consumers after dispatch and must not be recycled.
type BookEvent struct {
	BaseEvent
	Book *domain.BookSnapshot `json:"book"`
}

func (e BookEvent) GetType() Type { return EvBook }

// HaltEvent requests an orderly pipeline stop (e.g. from an operator
// signal or a fatal upstream condition).
type HaltEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

func (e HaltEvent) GetType() Type { return EvSystemHalt }
