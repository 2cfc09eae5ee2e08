// Redis connects the dispatcher to the rest of the house through redis pub/sub.
// Writable components are channels named by the component key, updates are published
// to the channel of the component. Nothing is stored: strobe commands are events, not states.
package Redis

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/JSkrat/kagami-house-lencarta/DevHub/OutsideInterface"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.Formatter = new(logrus.TextFormatter)
	log.Level = logrus.InfoLevel
	log.Out = os.Stdout
}

func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// Interface holds a single subscription connection for all writable components,
// messages are routed to the component channels by redis channel name.
type Interface struct {
	db         *redis.Client
	ctx        context.Context
	cancel     context.CancelFunc
	pubsub     *redis.PubSub
	components map[string]chan OutsideInterface.SubMessage
	closed     bool
	wg         sync.WaitGroup
	mutex      sync.Mutex
}

// Init connects and checks the server answers
func Init(self *Interface, address string) error {
	self.db = redis.NewClient(&redis.Options{Addr: address})
	self.ctx, self.cancel = context.WithCancel(context.Background())
	if err := self.db.Ping(self.ctx).Err(); nil != err {
		self.cancel()
		_ = self.db.Close()
		return fmt.Errorf("redis %v: %w", address, err)
	}
	self.components = make(map[string]chan OutsideInterface.SubMessage)
	self.pubsub = self.db.Subscribe(self.ctx)
	self.wg.Add(1)
	go self.fanOut(self.pubsub.Channel())
	log.Info(fmt.Sprintf("Redis.Init connected to %v", address))
	return nil
}

func (i *Interface) UpdateComponent(key string, value string) {
	if err := i.db.Publish(i.ctx, key, value).Err(); nil != err {
		log.Warn(fmt.Sprintf("Redis.UpdateComponent(%v, %v): %v", key, value, err))
	}
}

// RegisterWritableComponent subscribes to the component channel. The returned channel is
// closed on Close.
func (i *Interface) RegisterWritableComponent(key string) <-chan OutsideInterface.SubMessage {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if ret, ok := i.components[key]; ok {
		log.Warn(fmt.Sprintf("Redis.RegisterWritableComponent(%v): already registered", key))
		return ret
	}
	ret := make(chan OutsideInterface.SubMessage)
	if i.closed {
		close(ret)
		return ret
	}
	i.components[key] = ret
	if err := i.pubsub.Subscribe(i.ctx, key); nil != err {
		log.Warn(fmt.Sprintf("Redis.RegisterWritableComponent(%v): %v", key, err))
	}
	log.Debug(fmt.Sprintf("Redis.RegisterWritableComponent(%v)", key))
	return ret
}

// fanOut routes every message of the subscription to its component until the subscription is closed
func (i *Interface) fanOut(messages <-chan *redis.Message) {
	defer i.wg.Done()
	defer i.closeComponents()
	for m := range messages {
		i.mutex.Lock()
		ret, ok := i.components[m.Channel]
		i.mutex.Unlock()
		if !ok {
			log.Debug(fmt.Sprintf("Redis.fanOut: message on unregistered %v", m.Channel))
			continue
		}
		select {
		case ret <- OutsideInterface.SubMessage{Key: m.Channel, Value: m.Payload}:
		case <-i.ctx.Done():
			return
		}
	}
}

func (i *Interface) closeComponents() {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	for key, ret := range i.components {
		close(ret)
		delete(i.components, key)
	}
}

func (i *Interface) Close() {
	i.mutex.Lock()
	i.closed = true
	i.cancel()
	if err := i.pubsub.Close(); nil != err {
		log.Warn(fmt.Sprintf("Redis.Close: %v", err))
	}
	i.mutex.Unlock()
	i.wg.Wait()
	if err := i.db.Close(); nil != err {
		log.Warn(fmt.Sprintf("Redis.Close: %v", err))
	}
}
