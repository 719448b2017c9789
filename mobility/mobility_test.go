package mobility

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Vector", func() {
	It("should measure distance", func() {
		a := Vector{X: 0, Y: 0, Z: 0}
		b := Vector{X: 3, Y: 4, Z: 0}

		Expect(a.DistanceTo(b)).To(BeNumerically("~", 5, 1e-12))
	})

	It("should reflect coordinates into range", func() {
		Expect(reflect(5, 0, 10)).To(BeNumerically("~", 5, 1e-12))
		Expect(reflect(12, 0, 10)).To(BeNumerically("~", 8, 1e-12))
		Expect(reflect(-3, 0, 10)).To(BeNumerically("~", 3, 1e-12))
		Expect(reflect(25, 0, 10)).To(BeNumerically("~", 5, 1e-12))
		Expect(reflect(7, 4, 4)).To(Equal(4.0))
	})
})

var _ = Describe("RandomWalk2D", func() {
	bounds := Rectangle{XMin: 0, XMax: 200, YMin: 0, YMax: 200}

	It("should start at the origin", func() {
		w := NewRandomWalk2D(Vector{X: 10, Y: 20, Z: 1}, 1, 1, bounds,
			rand.New(rand.NewSource(1)))

		Expect(w.Position(0)).To(Equal(Vector{X: 10, Y: 20, Z: 1}))
	})

	It("should move at the configured speed within a leg", func() {
		w := NewRandomWalk2D(Vector{X: 100, Y: 100}, 2, 1, bounds,
			rand.New(rand.NewSource(1)))

		p := w.Position(0.5)
		Expect(p.DistanceTo(Vector{X: 100, Y: 100})).
			To(BeNumerically("~", 1, 1e-9))
	})

	It("should stay in bounds", func() {
		w := NewRandomWalk2D(Vector{X: 1, Y: 1}, 50, 1, bounds,
			rand.New(rand.NewSource(7)))

		for t := 0.0; t < 100; t += 0.25 {
			Expect(bounds.Contains(w.Position(t))).To(BeTrue())
		}
	})

	It("should be reproducible", func() {
		a := NewRandomWalk2D(Vector{X: 50, Y: 50}, 1, 1, bounds,
			rand.New(rand.NewSource(3)))
		b := NewRandomWalk2D(Vector{X: 50, Y: 50}, 1, 1, bounds,
			rand.New(rand.NewSource(3)))

		Expect(a.Position(17.3)).To(Equal(b.Position(17.3)))
	})

	It("should panic on a non-positive interval", func() {
		Expect(func() {
			NewRandomWalk2D(Vector{}, 1, 0, bounds, rand.New(rand.NewSource(1)))
		}).To(Panic())
	})
})

var _ = Describe("Allocators", func() {
	It("should cycle through a list", func() {
		a := &ListAllocator{Positions: []Vector{{X: 1}, {X: 2}}}

		Expect(a.Next().X).To(Equal(1.0))
		Expect(a.Next().X).To(Equal(2.0))
		Expect(a.Next().X).To(Equal(1.0))
	})

	It("should return the origin for an empty list", func() {
		a := &ListAllocator{}
		Expect(a.Next()).To(Equal(Vector{}))
	})

	It("should place points inside the disc", func() {
		center := Vector{X: 100, Y: 100}
		a := &RandomDiscAllocator{
			Center: center,
			MaxRho: 30,
			Rand:   rand.New(rand.NewSource(11)),
		}

		for i := 0; i < 200; i++ {
			Expect(a.Next().DistanceTo(center)).To(BeNumerically("<=", 30+1e-9))
		}
	})
})
