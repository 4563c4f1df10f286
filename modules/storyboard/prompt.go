package storyboard

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"neon-storyboard-server/modules/common/model"
)

// SystemInstructionStoryboard - 대본을 씬 배열로 분해하는 시스템 프롬프트
const SystemInstructionStoryboard = `
你是一位顶级电影分镜师。你的任务是将用户提供的剧本拆解为详细的视频分镜。
请返回 JSON 格式，包含一个数组 "scenes"。

重要原则：为了保持视频的一致性，请在每个分镜的 "visual_prompt" 中重复描述主角的外貌特征（如发色、衣着）和场景的整体基调。不要假设模型记得上一个分镜的内容。

每个 scene 必须包含：
1. "description": 分镜剧情描述 (必须中文)
2. "visual_prompt": 用于生成画面的详细视觉提示词，包含光影、风格、主体。必须包含主角特征的重复描述。(必须中文)
3. "camera_angle": 运镜方式 (必须严格使用中文，例如：推镜头、特写、广角、环绕)
4. "estimated_duration": 预估时长 (秒，整数，通常在 2-5 秒之间)
`

// SystemInstructionEDL - CMX 3600 EDL 생성 시스템 프롬프트
const SystemInstructionEDL = `
你是一位专业的后期剪辑助理。请根据提供的视频片段列表，生成一个标准的 CMX 3600 格式的 EDL (Edit Decision List)。

规则：
1. 格式必须严格遵循 CMX 3600 标准。
2. 假设每个素材的帧率是 24fps。
3. 假设 Timeline 起始时间码为 01:00:00:00。
4. 按照场景顺序依次排列 (Cut 剪辑)。
5. Clip Name 使用 SCENE_01, SCENE_02 等格式。
6. 在 EDL 下方，请用中文简要分析一下这组镜头的剪辑节奏和情感色彩。

输入将包含每个场景的 ID, 描述, 和时长。
`

// ImageQualitySuffix is appended to every image prompt.
const ImageQualitySuffix = ", 电影质感, 8k分辨率, 高细节, 赛博朋克风格, 霓虹配色"

// CredentialPromptMessage is shown when the current key cannot reach the video model.
const CredentialPromptMessage = "【Veo 模型权限检查】检测到当前 Key 无法访问视频生成模型 (404 Error)。请输入具有 Veo 权限的 Google Cloud API Key 以继续。"

// DemoModeMessage - 데모 영상으로 대체될 때 사용자 알림
func DemoModeMessage(cause error) string {
	return fmt.Sprintf("视频生成遇到问题，将切换至【演示模式】(Demo Mode)。原因: %v", cause)
}

// BuildImagePrompt prefixes the global visual bible onto a scene prompt.
func BuildImagePrompt(visualBible, prompt string) string {
	bible := strings.TrimSpace(visualBible)
	if bible == "" {
		return prompt
	}
	return fmt.Sprintf("(Global Visual Settings / 全局视觉设定: %s)。 %s", bible, prompt)
}

// SequenceData renders scenes in cut order, one line per scene, 1-indexed.
func SequenceData(scenes []model.Scene) string {
	lines := make([]string, len(scenes))
	for i, s := range scenes {
		n := i + 1
		lines[i] = fmt.Sprintf("SCENE_%d: Duration=%ds. Description=%s. Filename=%s", n, s.Duration, s.Description, ClipFilename(n))
	}
	return strings.Join(lines, "\n")
}

// ClipFilename - 1부터 시작하는 씬 번호의 다운로드 파일명
func ClipFilename(n int) string {
	return fmt.Sprintf("scene_%d.mp4", n)
}

func edlPrompt(scenes []model.Scene) string {
	return "Video Sequence Data:\n" + SequenceData(scenes)
}

func storyboardSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"scenes": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"description":        {Type: genai.TypeString},
						"visual_prompt":      {Type: genai.TypeString},
						"camera_angle":       {Type: genai.TypeString},
						"estimated_duration": {Type: genai.TypeInteger},
					},
					Required: []string{"description", "visual_prompt", "camera_angle", "estimated_duration"},
				},
			},
		},
		Required: []string{"scenes"},
	}
}
