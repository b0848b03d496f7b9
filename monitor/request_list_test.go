package monitor

import (
	"testing"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
)

func newRequest(id string, chainID uint64, nextCheck time.Time) *monitorRequest {
	return &monitorRequest{
		tx:        &types.TransactionRecord{ID: id, ChainID: chainID},
		nextCheck: nextCheck,
	}
}

func TestRequestListDelete(t *testing.T) {
	el := newMonitorRequestList()

	now := time.Now()
	past := now.Add(-time.Minute * 5)
	future := now.Add(time.Minute * 5)

	el.add(newRequest("0x01", 1, now))
	el.add(newRequest("0x02", 1, now))
	el.add(newRequest("0x03", 1, past))
	el.add(newRequest("0x04", 1, past))
	el.add(newRequest("0x05", 1, future))

	sort := []string{"0x03", "0x04", "0x01", "0x02", "0x05"}

	for index, req := range el.sorted {
		if sort[index] != req.id() {
			t.Fatalf("Sort error. Expected %s, Actual %s", sort[index], req.id())
		}
	}

	if el.add(newRequest("0x01", 1, future)) {
		t.Fatal("Add error. 0x01 req was added twice")
	}

	delreqs := []string{"0x01", "0x04", "0x05"}

	for _, delreq := range delreqs {
		count := el.len()
		el.deleteByID(delreq)

		for i := 0; i < el.len(); i++ {
			if el.getByIndex(i).id() == delreq {
				t.Fatalf("Delete error. %s req was not deleted", delreq)
			}
		}

		if el.len() != count-1 {
			t.Fatalf("Length error. Length %d. Expected %d", el.len(), count)
		}
	}

	if el.deleteByID("0x05") {
		t.Fatal("Delete error. 0x05 req was deleted and should not exist in the list")
	}
}

func TestRequestListPopDue(t *testing.T) {
	el := newMonitorRequestList()

	now := time.Now()
	el.add(newRequest("a", 1, now.Add(-time.Minute)))
	el.add(newRequest("b", 2, now.Add(-time.Second)))
	el.add(newRequest("c", 1, now))
	el.add(newRequest("d", 1, now.Add(time.Minute)))

	due := el.popDue(1, now)
	if len(due) != 2 || due[0].id() != "a" || due[1].id() != "c" {
		t.Fatalf("PopDue error. Expected [a c], Actual %d requests", len(due))
	}
	if el.len() != 2 {
		t.Fatalf("Length error. Length %d. Expected 2", el.len())
	}
	if _, found := el.get("a"); found {
		t.Fatal("PopDue error. a is still indexed")
	}
	if el.getByIndex(0).id() != "b" || el.getByIndex(1).id() != "d" {
		t.Fatal("PopDue error. remaining requests are not sorted")
	}

	if due := el.popDue(1, now); len(due) != 0 {
		t.Fatalf("PopDue error. %d requests popped twice", len(due))
	}
	if !el.deleteByID("d") {
		t.Fatal("Delete error. d req was not deleted after popDue")
	}
}

// getByIndex retrieves the monitor request at the i position of the sorted list
func (e *monitorRequestList) getByIndex(i int) *monitorRequest {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.sorted[i]
}
