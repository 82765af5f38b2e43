// Package profile はペダル番号ごとのバインディングを保存するプロファイルファイルを扱う。
//
// 書式は1行1エントリで、';' または '#' で始まる行と空行は無視される。
//
//	Position1 = 131113, 0, 65281
//
// 値は左・中・右のバインディングコードを10進数で並べたもの。
package profile

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/char5742/pedald/internal/binding"
	"github.com/char5742/pedald/internal/pedal"
)

const keyPrefix = "position"

// Parse はプロファイルを読み込む。書式に合わない行は読み飛ばし、読めた分だけを返す
func Parse(r io.Reader) (positions map[int]pedal.BindingSet, skipped int) {
	positions = map[int]pedal.BindingSet{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		pos, set, ok := parseLine(line)
		if !ok {
			skipped++
			continue
		}
		positions[pos] = set
	}
	return positions, skipped
}

func parseLine(line string) (int, pedal.BindingSet, bool) {
	var set pedal.BindingSet

	key, value, found := strings.Cut(line, "=")
	if !found || strings.Contains(value, "=") {
		return 0, set, false
	}
	key = strings.TrimSpace(key)
	if len(key) <= len(keyPrefix) || !strings.EqualFold(key[:len(keyPrefix)], keyPrefix) {
		return 0, set, false
	}
	pos, err := strconv.Atoi(strings.TrimSpace(key[len(keyPrefix):]))
	if err != nil {
		return 0, set, false
	}

	fields := strings.Split(value, ",")
	if len(fields) != pedal.SwitchCount {
		return 0, set, false
	}
	for i, field := range fields {
		n, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
		if err != nil {
			return 0, set, false
		}
		set[i] = binding.Code(n)
	}
	return pos, set, true
}

// Write はpositionsのうち登録済み（1〜99）の位置だけを位置順に書き出す
func Write(w io.Writer, positions map[int]pedal.BindingSet, savedAt time.Time) error {
	keys := make([]int, 0, len(positions))
	for pos := range positions {
		if pedal.IsMappedPosition(pos) {
			keys = append(keys, pos)
		}
	}
	sort.Ints(keys)

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "; pedald profile")
	fmt.Fprintf(bw, "; Saved: %s\n", savedAt.Format(time.RFC3339))
	fmt.Fprintln(bw, "; Format: PositionN = Left, Middle, Right")
	fmt.Fprintln(bw)
	for _, pos := range keys {
		set := positions[pos]
		fmt.Fprintf(bw, "; Position %d\n", pos)
		fmt.Fprintf(bw, "Position%d = %d, %d, %d\n", pos, set[pedal.Left], set[pedal.Middle], set[pedal.Right])
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}
