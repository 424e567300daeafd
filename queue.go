package match

import (
	"github.com/huandu/skiplist"
)

type priceUnit struct {
	totalSize int64 // Absolute resting size at this level
	head      *DetailedOrder
	tail      *DetailedOrder
	count     int64
}

type queue struct {
	side        Side
	totalOrders int64
	depths      int64
	depthList   *skiplist.SkipList
	priceList   map[int64]*skiplist.Element
	orders      map[uint64]*DetailedOrder
}

// NewBuyerQueue creates a new queue for buy orders (bids).
// The orders are sorted by price in descending order (highest price first).
func NewBuyerQueue() *queue {
	return &queue{
		side:      Buy,
		depthList: skiplist.New(skiplist.Int64Desc),
		priceList: make(map[int64]*skiplist.Element),
		orders:    make(map[uint64]*DetailedOrder),
	}
}

// NewSellerQueue creates a new queue for sell orders (asks).
// The orders are sorted by price in ascending order (lowest price first).
func NewSellerQueue() *queue {
	return &queue{
		side:      Sell,
		depthList: skiplist.New(skiplist.Int64),
		priceList: make(map[int64]*skiplist.Element),
		orders:    make(map[uint64]*DetailedOrder),
	}
}

// order finds a resting order by its sequence number.
func (q *queue) order(seq uint64) *DetailedOrder {
	return q.orders[seq]
}

// insertOrder inserts an order into the queue.
// isFront places the order ahead of everything already resting at its price.
func (q *queue) insertOrder(order *DetailedOrder, isFront bool) {
	size := order.Size()

	el, ok := q.priceList[order.Price]
	if ok {
		unit, _ := el.Value.(*priceUnit)
		if isFront {
			order.next = unit.head
			order.prev = nil
			if unit.head != nil {
				unit.head.prev = order
			}
			unit.head = order
			if unit.tail == nil {
				unit.tail = order
			}
		} else {
			order.prev = unit.tail
			order.next = nil
			if unit.tail != nil {
				unit.tail.next = order
			}
			unit.tail = order
			if unit.head == nil {
				unit.head = order
			}
		}

		unit.totalSize += size
		unit.count++
		q.orders[order.Sequence] = order
		q.totalOrders++
		return
	}

	unit := &priceUnit{
		head:      order,
		tail:      order,
		totalSize: size,
		count:     1,
	}
	order.next = nil
	order.prev = nil

	q.orders[order.Sequence] = order
	q.priceList[order.Price] = q.depthList.Set(order.Price, unit)

	q.totalOrders++
	q.depths++
}

// removeOrder removes an order from the queue by price and sequence.
// The price level is dropped once its last order leaves.
func (q *queue) removeOrder(price int64, seq uint64) {
	skipElement, ok := q.priceList[price]
	if !ok {
		return
	}
	unit, _ := skipElement.Value.(*priceUnit)

	order, ok := q.orders[seq]
	if !ok {
		return
	}

	if order.prev != nil {
		order.prev.next = order.next
	} else {
		unit.head = order.next
	}

	if order.next != nil {
		order.next.prev = order.prev
	} else {
		unit.tail = order.prev
	}

	order.next = nil
	order.prev = nil

	unit.totalSize -= order.Size()
	unit.count--
	delete(q.orders, seq)
	q.totalOrders--

	if unit.count == 0 {
		q.depthList.RemoveElement(skipElement)
		delete(q.priceList, price)
		q.depths--
	}
}

// updateOrderSize sets the absolute resting size of an order in place,
// keeping its position in the level.
func (q *queue) updateOrderSize(seq uint64, newSize int64) {
	order, ok := q.orders[seq]
	if !ok {
		return
	}

	skipElement, ok := q.priceList[order.Price]
	if !ok {
		return
	}
	unit, _ := skipElement.Value.(*priceUnit)
	unit.totalSize -= order.Size() - newSize

	if q.side == Sell {
		order.Quantity = -newSize
	} else {
		order.Quantity = newSize
	}
}

// peekHeadOrder returns the order at the front of the queue (best price) without removing it.
func (q *queue) peekHeadOrder() *DetailedOrder {
	el := q.depthList.Front()
	if el == nil {
		return nil
	}

	unit, _ := el.Value.(*priceUnit)
	return unit.head
}

// popHeadOrder removes and returns the order at the front of the queue.
func (q *queue) popHeadOrder() *DetailedOrder {
	ord := q.peekHeadOrder()
	if ord != nil {
		q.removeOrder(ord.Price, ord.Sequence)
	}
	return ord
}

// bestPrice returns the price of the best level.
func (q *queue) bestPrice() (int64, bool) {
	el := q.depthList.Front()
	if el == nil {
		return 0, false
	}
	return el.Key().(int64), true
}

func (q *queue) hasPrice(price int64) bool {
	_, ok := q.priceList[price]
	return ok
}

// levelSize returns the absolute size resting at price.
func (q *queue) levelSize(price int64) int64 {
	el, ok := q.priceList[price]
	if !ok {
		return 0
	}
	unit, _ := el.Value.(*priceUnit)
	return unit.totalSize
}

// orderCount returns the total number of orders in the queue.
func (q *queue) orderCount() int64 {
	return q.totalOrders
}

// depthCount returns the number of price levels in the queue.
func (q *queue) depthCount() int64 {
	return q.depths
}

// toSnapshot returns every resting order in priority order:
// best price first, then queue position within the level.
func (q *queue) toSnapshot() []DetailedOrder {
	snapshots := make([]DetailedOrder, 0, q.totalOrders)

	for elem := q.depthList.Front(); elem != nil; elem = elem.Next() {
		unit := elem.Value.(*priceUnit)
		for order := unit.head; order != nil; order = order.next {
			snapshots = append(snapshots, DetailedOrder{
				Order:    order.Order,
				Owner:    order.Owner,
				Sequence: order.Sequence,
			})
		}
	}

	return snapshots
}

// depth returns up to limit aggregated levels, best first. A zero limit
// returns every level. Sell quantities are reported negative.
func (q *queue) depth(limit int) []DepthItem {
	capacity := limit
	if limit <= 0 || int64(limit) > q.depths {
		capacity = int(q.depths)
	}
	result := make([]DepthItem, 0, capacity)

	for el := q.depthList.Front(); el != nil; el = el.Next() {
		if limit > 0 && len(result) >= limit {
			break
		}
		unit, _ := el.Value.(*priceUnit)
		qty := unit.totalSize
		if q.side == Sell {
			qty = -qty
		}
		result = append(result, DepthItem{
			Price:    el.Key().(int64),
			Quantity: qty,
		})
	}

	return result
}

// reset drops every resting order.
func (q *queue) reset() {
	if q.side == Buy {
		q.depthList = skiplist.New(skiplist.Int64Desc)
	} else {
		q.depthList = skiplist.New(skiplist.Int64)
	}
	q.priceList = make(map[int64]*skiplist.Element)
	q.orders = make(map[uint64]*DetailedOrder)
	q.totalOrders = 0
	q.depths = 0
}
