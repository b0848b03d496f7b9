package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
)

// monitorRequestList represents a list of monitorRequest indexed by record id but sorted by nextCheck
type monitorRequestList struct {
	list   map[string]*monitorRequest
	sorted []*monitorRequest
	mutex  sync.Mutex
}

// newMonitorRequestList creates and init a monitorRequestList
func newMonitorRequestList() *monitorRequestList {
	return &monitorRequestList{
		list:   make(map[string]*monitorRequest),
		sorted: []*monitorRequest{},
	}
}

// add adds a request to the list. A request for a record already in the list is ignored.
func (e *monitorRequestList) add(request *monitorRequest) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if _, found := e.list[request.id()]; !found {
		e.list[request.id()] = request
		e.addSort(request)
		return true
	}
	return false
}

// deleteByID deletes the request of the record id from the list
func (e *monitorRequestList) deleteByID(id string) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.deleteLocked(id)
}

func (e *monitorRequestList) deleteLocked(id string) bool {
	request, found := e.list[id]
	if !found {
		return false
	}

	sLen := len(e.sorted)
	i := sort.Search(sLen, func(i int) bool {
		return isGreaterOrEqualThan(e.sorted[i], request)
	})

	// i is the index of the first request with equal (or greater) nextCheck time. From here we go up
	// in the list until we find the request or a request with a different nextCheck time
	for {
		if i == sLen {
			log.Warnf("error deleting monitor request %s from monitorRequestList, we reach the end of the list", id)
			return false
		}

		if e.sorted[i].nextCheck.UnixMilli() != request.nextCheck.UnixMilli() {
			log.Warnf("error deleting monitor request %s from monitorRequestList, not found in the list of requests with same nextCheck time: %v", id, request.nextCheck)
			return false
		}

		if e.sorted[i].id() == id {
			break
		}

		i = i + 1
	}

	delete(e.list, id)

	copy(e.sorted[i:], e.sorted[i+1:])
	e.sorted[sLen-1] = nil
	e.sorted = e.sorted[:sLen-1]

	return true
}

// get returns the request of the record id
func (e *monitorRequestList) get(id string) (*monitorRequest, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	request, found := e.list[id]
	return request, found
}

// len returns the length of the list
func (e *monitorRequestList) len() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return len(e.sorted)
}

// popDue removes and returns the requests of chainID whose nextCheck time is not after now
func (e *monitorRequestList) popDue(chainID uint64, now time.Time) []*monitorRequest {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	var due []*monitorRequest
	kept := e.sorted[:0]
	for i, request := range e.sorted {
		if request.nextCheck.After(now) {
			kept = append(kept, e.sorted[i:]...)
			break
		}
		if request.tx.ChainID == chainID {
			due = append(due, request)
			delete(e.list, request.id())
			continue
		}
		kept = append(kept, request)
	}
	for i := len(kept); i < len(e.sorted); i++ {
		e.sorted[i] = nil
	}
	e.sorted = kept
	return due
}

// addSort adds the monitor request to the list in a sorted way
func (e *monitorRequestList) addSort(request *monitorRequest) {
	i := sort.Search(len(e.sorted), func(i int) bool {
		return isGreaterThan(e.sorted[i], request)
	})

	e.sorted = append(e.sorted, nil)
	copy(e.sorted[i+1:], e.sorted[i:])
	e.sorted[i] = request
	log.Debugf("added monitor request for tx %s with nextCheck time %v to monitorRequestList at index %d from total %d", request.tx.Tag(), request.nextCheck, i, len(e.sorted))
}

// isGreaterThan returns true if the request1 has greater nextCheck time than request2
func isGreaterThan(request1 *monitorRequest, request2 *monitorRequest) bool {
	return request1.nextCheck.UnixMilli() > request2.nextCheck.UnixMilli()
}

// isGreaterOrEqualThan returns true if the request1 has greater or equal nextCheck time than request2
func isGreaterOrEqualThan(request1 *monitorRequest, request2 *monitorRequest) bool {
	return request1.nextCheck.UnixMilli() >= request2.nextCheck.UnixMilli()
}
