package events

import (
	"encoding/json"
	"fmt"

	"conduit/pkg/store"
)

// Record type tags, one per watched table plus the deleted variants.
const (
	RecordTask                    = "TASK"
	RecordTaskAttempt             = "TASK_ATTEMPT"
	RecordExecutionProcess        = "EXECUTION_PROCESS"
	RecordDeletedTask             = "DELETED_TASK"
	RecordDeletedTaskAttempt      = "DELETED_TASK_ATTEMPT"
	RecordDeletedExecutionProcess = "DELETED_EXECUTION_PROCESS"
)

// Record is the tagged union carried in each event patch. Data is the
// materialized row for live records, or `{"rowid": n}` for deleted ones.
type Record struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventPatch is the value of one emitted patch operation.
type EventPatch struct {
	DBOp   store.Op `json:"db_op"`
	Record Record   `json:"record"`
}

type deletedData struct {
	Rowid int64 `json:"rowid"`
}

// liveRecord wraps a materialized row in its table's tag.
func liveRecord(table string, row any) (Record, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s record: %w", table, err)
	}
	var typ string
	switch table {
	case store.TableTasks:
		typ = RecordTask
	case store.TableTaskAttempts:
		typ = RecordTaskAttempt
	case store.TableExecutionProcesses:
		typ = RecordExecutionProcess
	default:
		return Record{}, fmt.Errorf("unwatched table %q", table)
	}
	return Record{Type: typ, Data: data}, nil
}

// deletedRecord builds the tombstone record for a removed row.
func deletedRecord(table string, rowid int64) (Record, error) {
	data, err := json.Marshal(deletedData{Rowid: rowid})
	if err != nil {
		return Record{}, fmt.Errorf("marshal deleted record: %w", err)
	}
	var typ string
	switch table {
	case store.TableTasks:
		typ = RecordDeletedTask
	case store.TableTaskAttempts:
		typ = RecordDeletedTaskAttempt
	case store.TableExecutionProcesses:
		typ = RecordDeletedExecutionProcess
	default:
		return Record{}, fmt.Errorf("unwatched table %q", table)
	}
	return Record{Type: typ, Data: data}, nil
}
