package subprocess

import (
	"sync/atomic"
	"unsafe"

	"github.com/jabo17/mallob/internal/job"
)

// controlField indexes one int32-sized slot of the control record
// (spec §3 "Shared-memory segment": control flags, response flags,
// portfolio rank/size, result enum, solution size). Fixed layout, one
// int32 per field, so the record can be described purely by offset and
// every field is independently atomic across the fork boundary.
type controlField int

const (
	fieldPortfolioRank controlField = iota
	fieldPortfolioSize
	fieldDoExport
	fieldDoImport
	fieldDoDumpStats
	fieldDoUpdateRole
	fieldDoInterrupt
	fieldDidExport
	fieldDidImport
	fieldDidDumpStats
	fieldDidUpdateRole
	fieldDidInterrupt
	fieldIsInitialized
	fieldHasSolution
	fieldResult
	fieldSolutionSize
	fieldExportBufferMaxSize
	fieldExportBufferTrueSize
	fieldImportBufferSize
	fieldWrittenRevision
	numControlFields
)

const wordSize = 4

// controlRecordSize is the fixed byte size of the control region.
const controlRecordSize = int(numControlFields) * wordSize

// controlRecord is a typed view over a control region's raw bytes.
// Only the parent writes do_X fields and reads did_X fields; only the
// child writes did_X and reads do_X (spec §4.2 "Invariants":
// single-writer-single-reader per flag). This type enforces no such
// separation by itself — it is a dumb accessor, callers (Adapter vs.
// the notional child) are responsible for respecting the split.
type controlRecord struct {
	data []byte
}

func newControlRecord(data []byte) *controlRecord {
	if len(data) < controlRecordSize {
		panic("subprocess: control region smaller than controlRecordSize")
	}
	return &controlRecord{data: data}
}

func (c *controlRecord) ptr(f controlField) *int32 {
	return (*int32)(unsafe.Pointer(&c.data[int(f)*wordSize]))
}

func (c *controlRecord) load(f controlField) int32     { return atomic.LoadInt32(c.ptr(f)) }
func (c *controlRecord) store(f controlField, v int32)  { atomic.StoreInt32(c.ptr(f), v) }
func (c *controlRecord) loadBool(f controlField) bool   { return c.load(f) != 0 }
func (c *controlRecord) storeBool(f controlField, v bool) {
	var iv int32
	if v {
		iv = 1
	}
	c.store(f, iv)
}

func (c *controlRecord) reset(portfolioRank, portfolioSize int) {
	for f := controlField(0); f < numControlFields; f++ {
		c.store(f, 0)
	}
	c.store(fieldPortfolioRank, int32(portfolioRank))
	c.store(fieldPortfolioSize, int32(portfolioSize))
	c.store(fieldResult, int32(job.ResultUnknown))
}

func (c *controlRecord) PortfolioRank() int { return int(c.load(fieldPortfolioRank)) }
func (c *controlRecord) PortfolioSize() int { return int(c.load(fieldPortfolioSize)) }

func (c *controlRecord) SetPortfolio(rank, size int) {
	c.store(fieldPortfolioRank, int32(rank))
	c.store(fieldPortfolioSize, int32(size))
}

func (c *controlRecord) DoExport() bool           { return c.loadBool(fieldDoExport) }
func (c *controlRecord) SetDoExport(v bool)       { c.storeBool(fieldDoExport, v) }
func (c *controlRecord) DoImport() bool           { return c.loadBool(fieldDoImport) }
func (c *controlRecord) SetDoImport(v bool)       { c.storeBool(fieldDoImport, v) }
func (c *controlRecord) DoDumpStats() bool        { return c.loadBool(fieldDoDumpStats) }
func (c *controlRecord) SetDoDumpStats(v bool)    { c.storeBool(fieldDoDumpStats, v) }
func (c *controlRecord) DoUpdateRole() bool       { return c.loadBool(fieldDoUpdateRole) }
func (c *controlRecord) SetDoUpdateRole(v bool)   { c.storeBool(fieldDoUpdateRole, v) }
func (c *controlRecord) DoInterrupt() bool        { return c.loadBool(fieldDoInterrupt) }
func (c *controlRecord) SetDoInterrupt(v bool)    { c.storeBool(fieldDoInterrupt, v) }

func (c *controlRecord) DidExport() bool         { return c.loadBool(fieldDidExport) }
func (c *controlRecord) SetDidExport(v bool)     { c.storeBool(fieldDidExport, v) }
func (c *controlRecord) DidImport() bool         { return c.loadBool(fieldDidImport) }
func (c *controlRecord) SetDidImport(v bool)     { c.storeBool(fieldDidImport, v) }
func (c *controlRecord) DidDumpStats() bool      { return c.loadBool(fieldDidDumpStats) }
func (c *controlRecord) SetDidDumpStats(v bool)  { c.storeBool(fieldDidDumpStats, v) }
func (c *controlRecord) DidUpdateRole() bool     { return c.loadBool(fieldDidUpdateRole) }
func (c *controlRecord) SetDidUpdateRole(v bool) { c.storeBool(fieldDidUpdateRole, v) }
func (c *controlRecord) DidInterrupt() bool      { return c.loadBool(fieldDidInterrupt) }
func (c *controlRecord) SetDidInterrupt(v bool)  { c.storeBool(fieldDidInterrupt, v) }

func (c *controlRecord) IsInitialized() bool     { return c.loadBool(fieldIsInitialized) }
func (c *controlRecord) SetIsInitialized(v bool) { c.storeBool(fieldIsInitialized, v) }
func (c *controlRecord) HasSolution() bool       { return c.loadBool(fieldHasSolution) }
func (c *controlRecord) SetHasSolution(v bool)   { c.storeBool(fieldHasSolution, v) }

func (c *controlRecord) Result() job.Result       { return job.Result(c.load(fieldResult)) }
func (c *controlRecord) SetResult(r job.Result)   { c.store(fieldResult, int32(r)) }
func (c *controlRecord) SolutionSize() int        { return int(c.load(fieldSolutionSize)) }
func (c *controlRecord) SetSolutionSize(n int)    { c.store(fieldSolutionSize, int32(n)) }

func (c *controlRecord) ExportBufferMaxSize() int     { return int(c.load(fieldExportBufferMaxSize)) }
func (c *controlRecord) SetExportBufferMaxSize(n int) { c.store(fieldExportBufferMaxSize, int32(n)) }
func (c *controlRecord) ExportBufferTrueSize() int     { return int(c.load(fieldExportBufferTrueSize)) }
func (c *controlRecord) SetExportBufferTrueSize(n int) { c.store(fieldExportBufferTrueSize, int32(n)) }
func (c *controlRecord) ImportBufferSize() int     { return int(c.load(fieldImportBufferSize)) }
func (c *controlRecord) SetImportBufferSize(n int) { c.store(fieldImportBufferSize, int32(n)) }

func (c *controlRecord) WrittenRevision() int     { return int(c.load(fieldWrittenRevision)) }
func (c *controlRecord) SetWrittenRevision(n int) { c.store(fieldWrittenRevision, int32(n)) }
