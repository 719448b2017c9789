package timing

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/wifisim/sim/hooking"
)

var _ = Describe("SerialEngine", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *SerialEngine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewSerialEngine()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should schedule events", func() {
		handler1 := NewMockHandler(mockCtrl)
		handler2 := NewMockHandler(mockCtrl)
		evt1 := NewEventBase(2, handler1)
		evt2 := NewEventBase(1.5, handler2)

		gomock.InOrder(
			handler2.EXPECT().Handle(evt2),
			handler1.EXPECT().Handle(evt1),
		)

		_, err := engine.Schedule(evt1)
		Expect(err).NotTo(HaveOccurred())
		_, err = engine.Schedule(evt2)
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Run()).To(Succeed())
		Expect(engine.CurrentTime()).To(Equal(VTimeInSec(2)))
		Expect(engine.ExecutedEvents()).To(Equal(uint64(2)))
	})

	It("should run same-time callbacks in scheduling order", func() {
		var order []int
		for i := 0; i < 3; i++ {
			i := i
			_, err := engine.ScheduleFunc(1, func(VTimeInSec) error {
				order = append(order, i)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(engine.Run()).To(Succeed())
		Expect(order).To(Equal([]int{0, 1, 2}))
	})

	It("should run same-time callbacks before earlier secondary events", func() {
		var order []string

		secondary := NewSecondaryEventBase(1, HandlerFunc(func(Event) error {
			order = append(order, "secondary")
			return nil
		}))
		_, err := engine.Schedule(secondary)
		Expect(err).NotTo(HaveOccurred())

		_, err = engine.ScheduleFunc(1, func(VTimeInSec) error {
			order = append(order, "primary")
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Run()).To(Succeed())
		Expect(order).To(Equal([]string{"primary", "secondary"}))
	})

	It("should only run events not later than the stop time", func() {
		var ran []VTimeInSec
		record := func(now VTimeInSec) error {
			ran = append(ran, now)
			return nil
		}

		for _, d := range []VTimeInSec{1, 2, 3} {
			_, err := engine.ScheduleFunc(d, record)
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(engine.RunUntil(2)).To(Succeed())
		Expect(ran).To(Equal([]VTimeInSec{1, 2}))
		Expect(engine.CurrentTime()).To(Equal(VTimeInSec(2)))
		Expect(engine.PendingEvents()).To(Equal(1))

		Expect(engine.RunUntil(10)).To(Succeed())
		Expect(ran).To(Equal([]VTimeInSec{1, 2, 3}))
		Expect(engine.CurrentTime()).To(Equal(VTimeInSec(3)))
	})

	It("should not advance the clock when the queue drains early", func() {
		_, err := engine.ScheduleFunc(1, func(VTimeInSec) error { return nil })
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.RunUntil(100)).To(Succeed())
		Expect(engine.CurrentTime()).To(Equal(VTimeInSec(1)))
	})

	It("should return immediately with an empty queue", func() {
		Expect(engine.RunUntil(5)).To(Succeed())
		Expect(engine.CurrentTime()).To(Equal(VTimeInSec(0)))
	})

	It("should stop after the current event", func() {
		count := 0
		for i := 1; i <= 3; i++ {
			_, err := engine.ScheduleFunc(VTimeInSec(i), func(VTimeInSec) error {
				count++
				engine.Stop()
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(engine.Run()).To(Succeed())
		Expect(count).To(Equal(1))
		Expect(engine.PendingEvents()).To(Equal(2))

		Expect(engine.Run()).To(Succeed())
		Expect(count).To(Equal(2))
	})

	It("should reject events in the past", func() {
		_, err := engine.ScheduleFunc(2, func(now VTimeInSec) error {
			_, err := engine.Schedule(NewEventBase(1, nil))
			Expect(errors.Is(err, ErrInvalidSchedule)).To(BeTrue())
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Run()).To(Succeed())
	})

	It("should reject negative and NaN delays", func() {
		_, err := engine.ScheduleFunc(-1, nil)
		Expect(err).To(MatchError(ErrInvalidSchedule))

		_, err = engine.ScheduleFunc(VTimeInSec(math.NaN()), nil)
		Expect(err).To(MatchError(ErrInvalidSchedule))
	})

	It("should accept zero delay", func() {
		ran := false
		_, err := engine.ScheduleFunc(0, func(now VTimeInSec) error {
			ran = true
			Expect(now).To(Equal(VTimeInSec(0)))
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Run()).To(Succeed())
		Expect(ran).To(BeTrue())
	})

	It("should skip cancelled events", func() {
		ran := false
		h, err := engine.ScheduleFunc(1, func(VTimeInSec) error {
			ran = true
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Cancel(h)).To(BeTrue())
		Expect(engine.Run()).To(Succeed())
		Expect(ran).To(BeFalse())
		Expect(engine.ExecutedEvents()).To(BeZero())
	})

	It("should abort the run on handler error", func() {
		boom := errors.New("boom")
		handler := NewMockHandler(mockCtrl)
		evt := NewEventBase(1, handler)
		handler.EXPECT().Handle(evt).Return(boom)

		_, err := engine.Schedule(evt)
		Expect(err).NotTo(HaveOccurred())
		_, err = engine.Schedule(NewEventBase(2, NewMockHandler(mockCtrl)))
		Expect(err).NotTo(HaveOccurred())

		err = engine.Run()
		Expect(err).To(MatchError(boom))
		Expect(engine.PendingEvents()).To(Equal(1))
	})

	It("should invoke hooks around each event", func() {
		var positions []*hooking.HookPos
		engine.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions = append(positions, ctx.Pos)
		}))

		_, err := engine.ScheduleFunc(1, func(VTimeInSec) error { return nil })
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Run()).To(Succeed())
		Expect(positions).To(Equal([]*hooking.HookPos{
			HookPosBeforeEvent, HookPosAfterEvent,
		}))
	})

	It("should call simulation end handlers", func() {
		h := NewMockSimulationEndHandler(mockCtrl)
		engine.RegisterSimulationEndHandler(h)

		_, err := engine.ScheduleFunc(3, func(VTimeInSec) error { return nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Run()).To(Succeed())

		h.EXPECT().Handle(VTimeInSec(3))
		engine.Finished()
	})

	It("should pause and continue", func() {
		engine.Pause()
		Expect(engine.IsPaused()).To(BeTrue())
		engine.Pause()

		engine.Continue()
		Expect(engine.IsPaused()).To(BeFalse())
		engine.Continue()
	})

	It("should be deterministic", func() {
		trace := func() []VTimeInSec {
			e := NewSerialEngine()
			var out []VTimeInSec

			var spawn func(now VTimeInSec) error
			spawn = func(now VTimeInSec) error {
				out = append(out, now)
				if now < 5 {
					_, _ = e.ScheduleFunc(0.7, spawn)
					_, _ = e.ScheduleFunc(1.3, spawn)
				}
				return nil
			}

			_, _ = e.ScheduleFunc(0, spawn)
			Expect(e.Run()).To(Succeed())

			return out
		}

		Expect(trace()).To(Equal(trace()))
	})
})
