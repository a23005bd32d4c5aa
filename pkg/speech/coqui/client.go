package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

const (
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
)

// APIMode selects which Coqui server API the engine targets.
type APIMode string

const (
	// APIModeStandard targets the standard Coqui TTS server (GET /api/tts).
	// Voices are listed via GET /details.
	APIModeStandard APIMode = "standard"

	// APIModeXTTS targets the Coqui XTTS v2 API server (POST /tts_to_audio/).
	// Voices are listed via GET /studio_speakers and a voice is mandatory.
	APIModeXTTS APIMode = "xtts"
)

// IsValid reports whether m is a known mode.
func (m APIMode) IsValid() bool {
	return m == APIModeStandard || m == APIModeXTTS
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse is the JSON body returned by GET /details. Speakers is nil
// for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// clip is one synthesised utterance as mono 16-bit PCM.
type clip struct {
	pcm        []byte
	sampleRate int
	channels   int
}

// client talks to a Coqui server. It holds no per-utterance state.
type client struct {
	serverURL  string
	language   string
	apiMode    APIMode
	httpClient *http.Client
}

func (c *client) synthesize(ctx context.Context, text, speaker string) (clip, error) {
	var (
		req *http.Request
		err error
	)
	endpoint := apiTTSEndpoint
	if c.apiMode == APIModeXTTS {
		endpoint = ttsEndpoint
		body, merr := json.Marshal(ttsRequest{Text: text, SpeakerWav: speaker, Language: c.language})
		if merr != nil {
			return clip{}, fmt.Errorf("coqui: marshal tts request: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+endpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		params := url.Values{}
		params.Set("text", text)
		if speaker != "" {
			params.Set("speaker_id", speaker)
		}
		if c.language != "" {
			params.Set("language_id", c.language)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return clip{}, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return clip{}, fmt.Errorf("coqui: %s %s: %w", req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return clip{}, fmt.Errorf("coqui: %s %s returned status %d", req.Method, endpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return clip{}, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	info, err := parseWAV(wav)
	if err != nil {
		return clip{}, err
	}
	return clip{pcm: wav[info.DataOffset:], sampleRate: info.SampleRate, channels: info.Channels}, nil
}

// listVoices returns the voice names offered by the server, sorted.
func (c *client) listVoices(ctx context.Context) ([]string, error) {
	endpoint := detailsEndpoint
	if c.apiMode == APIModeXTTS {
		endpoint = studioSpeakersEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", endpoint, resp.StatusCode)
	}

	var names []string
	if c.apiMode == APIModeXTTS {
		var speakers map[string]json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&speakers); err != nil {
			return nil, fmt.Errorf("coqui: decode studio_speakers response: %w", err)
		}
		for name := range speakers {
			names = append(names, name)
		}
	} else {
		var details detailsResponse
		if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
			return nil, fmt.Errorf("coqui: decode details response: %w", err)
		}
		names = append(names, details.Speakers...)
	}
	slices.Sort(names)
	return names, nil
}

// matchVoice returns the first voice containing want, case-insensitively.
func matchVoice(voices []string, want string) (string, bool) {
	want = strings.ToLower(want)
	for _, v := range voices {
		if strings.Contains(strings.ToLower(v), want) {
			return v, true
		}
	}
	return "", false
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int
	Channels   int
}

// parseWAV walks the RIFF chunks of wav and returns the data offset and the
// format from the "fmt " chunk. The fmt chunk size varies between encoders,
// so the data offset is not assumed to be 44.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: WAV response missing WAVE identifier")
	}

	info := wavInfo{SampleRate: 22050, Channels: 1}
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			}
		case "data":
			info.DataOffset = offset + 8
			return info, nil
		}

		// Chunks are word-aligned.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}

// resampleMono16 converts 16-bit mono PCM from srcRate to dstRate using linear
// interpolation.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || srcRate <= 0 || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
