package pubengine

import (
	"testing"
	"time"
)

func BenchmarkSubscriptionTickWithData(b *testing.B) {
	now := time.Now()
	sub := NewSubscription(1, SubscriptionOptions{MaxKeepAliveCount: 1000, PublishingEnabled: true})
	src := &fakeSource{}
	sub.AddMonitoredItem(1, src)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		src.Push(Notification{MonitoredItemID: 1, Value: i})
		sub.Tick(now, fifoPull(&PublishRequest{RequestHandle: uint32(i)}))
	}
}

func BenchmarkEngineOnPublishRequestThroughput(b *testing.B) {
	vc := clockStub{now: time.Now()}
	e := NewEngine(EngineOptions{
		MaxPublishRequestInQueue: 1 << 20,
		Clock:                    vc,
		Sender:                   &recordingSender{},
	})
	sub := NewSubscription(1, SubscriptionOptions{PublishingInterval: time.Hour, MaxKeepAliveCount: 1000, PublishingEnabled: true})
	e.AddSubscription(sub)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.OnPublishRequest(&PublishRequest{RequestHandle: uint32(i)})
	}
}

type clockStub struct{ now time.Time }

func (c clockStub) Now() time.Time { return c.now }
