package mixer

import "math"

// PublishMeters walks every DPM-enabled strip and republishes any peak
// or hold value that has moved since the last publish, grounded on
// eventThreadFn's per-channel diff
// ((int)(100000*last) != (int)(100000*current)). It is a no-op while no
// OSC client is subscribed, matching g_bOsc gating the whole poll loop.
// Every value read here is one of the strip's atomic fields, so this
// runs concurrently with the RT callback writing the same fields
// without ever taking a lock shared with it.
func (e *Engine) PublishMeters() {
	if e.oscClients.ClientCount() == 0 {
		return
	}

	strips := e.loadStrips()
	for idx, s := range strips {
		if s == nil || !s.enableDpm.Load() {
			continue
		}
		dpmA := convertToDBFS(math.Float32frombits(s.dpmABits.Load()))
		dpmB := convertToDBFS(math.Float32frombits(s.dpmBBits.Load()))
		holdA := convertToDBFS(math.Float32frombits(s.holdABits.Load()))
		holdB := convertToDBFS(math.Float32frombits(s.holdBBits.Load()))

		if diffed(math.Float32frombits(s.dpmALastBits.Load()), dpmA) {
			s.dpmALastBits.Store(math.Float32bits(dpmA))
			e.publishFloat(idx, "dpma", dpmA)
		}
		if diffed(math.Float32frombits(s.dpmBLastBits.Load()), dpmB) {
			s.dpmBLastBits.Store(math.Float32bits(dpmB))
			e.publishFloat(idx, "dpmb", dpmB)
		}
		if diffed(math.Float32frombits(s.holdALastBits.Load()), holdA) {
			s.holdALastBits.Store(math.Float32bits(holdA))
			e.publishFloat(idx, "holda", holdA)
		}
		if diffed(math.Float32frombits(s.holdBLastBits.Load()), holdB) {
			s.holdBLastBits.Store(math.Float32bits(holdB))
			e.publishFloat(idx, "holdb", holdB)
		}
	}
}

func diffed(last, current float32) bool {
	return int(100000*last) != int(100000*current)
}
