// Package analytics хранит ограниченную историю телеметрии и производные величины
// Включает кольцевой буфер для графиков и накопитель суммарной энергии
package analytics

import "math"

// BoundedSeries реализует кольцевой буфер фиксированной емкости с вытеснением старейших значений
type BoundedSeries[T any] struct {
	values []T
	size   int
	index  int
	count  int
}

// NewBoundedSeries создает новый буфер заданной емкости
func NewBoundedSeries[T any](size int) *BoundedSeries[T] {
	if size < 1 {
		size = 1
	}
	return &BoundedSeries[T]{
		values: make([]T, size),
		size:   size,
	}
}

// Push добавляет новое значение в буфер
func (bs *BoundedSeries[T]) Push(value T) {
	if bs.count < bs.size {
		bs.count++
	}
	// При заполненном буфере index указывает на старейшее значение
	bs.values[bs.index] = value
	bs.index = (bs.index + 1) % bs.size
}

// Values возвращает копию значений, от старых к новым
func (bs *BoundedSeries[T]) Values() []T {
	out := make([]T, bs.count)
	start := (bs.index - bs.count + bs.size) % bs.size
	for i := 0; i < bs.count; i++ {
		out[i] = bs.values[(start+i)%bs.size]
	}
	return out
}

// Last возвращает последнее добавленное значение
func (bs *BoundedSeries[T]) Last() (T, bool) {
	var zero T
	if bs.count == 0 {
		return zero, false
	}
	return bs.values[(bs.index-1+bs.size)%bs.size], true
}

// Len возвращает количество элементов в буфере
func (bs *BoundedSeries[T]) Len() int {
	return bs.count
}

// Cap возвращает емкость буфера
func (bs *BoundedSeries[T]) Cap() int {
	return bs.size
}

// Reset очищает буфер, емкость сохраняется
func (bs *BoundedSeries[T]) Reset() {
	var zero T
	for i := range bs.values {
		bs.values[i] = zero
	}
	bs.index = 0
	bs.count = 0
}

// Summary агрегаты по значениям ряда
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summarize вычисляет среднее, минимум и максимум
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{Count: len(values), Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))
	return s
}
