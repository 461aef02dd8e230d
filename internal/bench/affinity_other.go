//go:build !linux

package bench

func pinToCore(int) error {
	return nil
}
