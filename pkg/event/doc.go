// Package event provides small, explicit observer lists.
//
// An Emitter owns an ordered list of listeners for one kind of notification. Adding a
// listener returns a Disposer; there is no global registry. A Bus groups emitters by
// a string key for subscriptions such as "Target.targetCreated".
//
//	var onEnd event.Emitter[struct{}]
//	dispose := onEnd.AddListener(func(struct{}) { log.Println("closed") })
//	defer dispose()
//	onEnd.Emit(struct{}{})
package event
