package orchestration

import events "github.com/koscakluka/ema-companion/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}
