package audio

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"
)

var edgeVoices = map[string]string{
	"bg": "bg-BG-KalinaNeural",
	"bn": "bn-IN-TanishaaNeural",
	"en": "en-US-AriaNeural",
	"gu": "gu-IN-DhwaniNeural",
	"hi": "hi-IN-SwaraNeural",
	"kn": "kn-IN-SapnaNeural",
	"ml": "ml-IN-SobhanaNeural",
	"mr": "mr-IN-AarohiNeural",
	"ta": "ta-IN-PallaviNeural",
	"te": "te-IN-ShrutiNeural",
	"zh": "zh-CN-XiaoxiaoNeural",
}

// EdgeProvider uses the Microsoft Edge read-aloud service, which needs no
// API key and returns MP3.
type EdgeProvider struct {
	voice string
}

// NewEdgeProvider creates an Edge TTS provider. An empty voice picks one
// by language at synthesis time.
func NewEdgeProvider(voice string) *EdgeProvider {
	return &EdgeProvider{voice: voice}
}

// Synthesize collects the streamed MP3 chunks for text.
func (p *EdgeProvider) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	voice, err := p.voiceFor(lang)
	if err != nil {
		return nil, err
	}

	comm, err := edge.NewCommunicate(text, edge.WithVoice(voice))
	if err != nil {
		return nil, fmt.Errorf("edge-tts setup failed: %w", err)
	}
	ch, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("edge-tts stream failed: %w", err)
	}

	return collectEdgeAudio(ctx, ch, comm.AudioDataIndex, edgeDrainWindow)
}

// edgeDrainWindow bounds how long late stream messages are discarded after
// collection stops.
const edgeDrainWindow = 30 * time.Second

// collectEdgeAudio reads the stream until every chunk has reported its end
// and joins the audio in chunk order.
func collectEdgeAudio(ctx context.Context, ch <-chan map[string]interface{}, chunks int, drainWindow time.Duration) ([]byte, error) {
	parts := make(map[int]*bytes.Buffer)
	for ends := 0; ends < chunks; {
		select {
		case <-ctx.Done():
			go drainEdge(ch, drainWindow)
			return nil, ctx.Err()
		case msg := <-ch:
			if e, ok := msg["error"]; ok {
				go drainEdge(ch, drainWindow)
				return nil, fmt.Errorf("edge-tts stream failed: %+v", e)
			}
			if _, ok := msg["end"]; ok {
				ends++
				continue
			}
			if msgType, _ := msg["type"].(string); msgType != "audio" {
				continue
			}
			data, ok := msg["data"].(edge.AudioData)
			if !ok {
				continue
			}
			if parts[data.Index] == nil {
				parts[data.Index] = &bytes.Buffer{}
			}
			parts[data.Index].Write(data.Data)
		}
	}
	// A chunk that ended without audio still reports an error afterwards.
	go drainEdge(ch, drainWindow)

	indexes := make([]int, 0, len(parts))
	for i := range parts {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	var buf bytes.Buffer
	for _, i := range indexes {
		buf.Write(parts[i].Bytes())
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("edge-tts returned no audio")
	}
	return buf.Bytes(), nil
}

// drainEdge discards messages for at most window. edge-tts-go never closes
// the stream channel and its readers block on unbuffered sends.
func drainEdge(ch <-chan map[string]interface{}, window time.Duration) {
	timer := time.NewTimer(window)
	defer timer.Stop()
	for {
		select {
		case <-ch:
		case <-timer.C:
			return
		}
	}
}

func (p *EdgeProvider) voiceFor(lang string) (string, error) {
	if p.voice != "" {
		return p.voice, nil
	}
	base := strings.ToLower(lang)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	voice, ok := edgeVoices[base]
	if !ok {
		return "", fmt.Errorf("no default edge voice for language %q, set audio.voice", lang)
	}
	return voice, nil
}

// Name returns the provider name
func (p *EdgeProvider) Name() string {
	return "edge"
}

// Extension returns "mp3"
func (p *EdgeProvider) Extension() string {
	return "mp3"
}

// IsAvailable always succeeds since the service needs no credentials.
func (p *EdgeProvider) IsAvailable() error {
	return nil
}
