package gateway

import (
	"sync"
	"sync/atomic"
)

// Sequencer はフェッチに単調増加の番号を振り、後から発行されたフェッチに追い越された結果を見分ける。
// 古い結果を捨てるかどうかは呼び出し側が決める。
type Sequencer struct {
	latest atomic.Uint64
}

// Ticket は1回のフェッチに割り当てられた番号。
type Ticket struct {
	seq uint64
	s   *Sequencer
}

// Begin は新しいフェッチの番号を発行する。以前に発行したTicketはすべて古くなる。
func (s *Sequencer) Begin() Ticket {
	return Ticket{seq: s.latest.Add(1), s: s}
}

// Seq は番号を返す。
func (t Ticket) Seq() uint64 {
	return t.seq
}

// Current はこのフェッチ以降に新しいフェッチが発行されていないかを返す。
func (t Ticket) Current() bool {
	return t.s != nil && t.s.latest.Load() == t.seq
}

// maxViews はSequencersが保持するビュー数の上限。
const maxViews = 256

// Sequencers はビュー名ごとのSequencerを保持する。
type Sequencers struct {
	mu    sync.Mutex
	views map[string]*Sequencer
}

// NewSequencers はSequencersを生成する。
func NewSequencers() *Sequencers {
	return &Sequencers{views: make(map[string]*Sequencer)}
}

// For はビュー名に対応するSequencerを返す。無ければ作る。
// 上限に達している場合は共有されないSequencerを返す。
func (s *Sequencers) For(view string) *Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.views[view]
	if ok {
		return seq
	}
	seq = &Sequencer{}
	if len(s.views) < maxViews {
		s.views[view] = seq
	}
	return seq
}
