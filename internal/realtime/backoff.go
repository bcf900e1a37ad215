package realtime

import "time"

// initialReconnectDelay は再接続の初回待ち時間。
const initialReconnectDelay = time.Second

// ReconnectDelay は連続失敗回数に基づいて再接続までの待ち時間を計算する。
// 初回1秒、2倍ずつ増加し、maxDelayで頭打ちになる。
func ReconnectDelay(consecutiveFailures int, maxDelay time.Duration) time.Duration {
	delay := initialReconnectDelay
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if maxDelay > 0 && delay > maxDelay {
			return maxDelay
		}
	}
	return delay
}
