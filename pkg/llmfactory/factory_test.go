package llmfactory_test

import (
	"sync"
	"testing"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/mocks/mockllms"
	"github.com/effective-security/toolagent/pkg/llmfactory"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeFactory replaces NewLLM with a mock that reports the provider and model
// it was created for.
func fakeFactory(t *testing.T) *int {
	ctrl := gomock.NewController(t)
	created := 0
	var lock sync.Mutex

	llmfactory.NewLLM = func(cfg *llmfactory.ProviderConfig, preferredModels ...string) (llms.Model, error) {
		lock.Lock()
		created++
		lock.Unlock()

		m := mockllms.NewMockModel(ctrl)
		m.EXPECT().GetName().Return(cfg.FindModel(preferredModels...)).AnyTimes()
		m.EXPECT().GetProviderType().Return(llms.ProviderType(cfg.Name)).AnyTimes()
		return m, nil
	}
	t.Cleanup(func() {
		llmfactory.NewLLM = llmfactory.CreateLLM
	})
	return &created
}

func loadFactory(t *testing.T) llmfactory.Factory {
	t.Setenv("OPENAI_API_KEY", "fakekey")
	t.Setenv("ANTHROPIC_API_KEY", "fakekey")

	f, err := llmfactory.Load("testdata/llm.yaml")
	require.NoError(t, err)
	return f
}

func Test_Factory(t *testing.T) {
	fakeFactory(t)
	f := loadFactory(t)

	tcases := []struct {
		name     string
		get      func() (llms.Model, error)
		model    string
		provider string
	}{
		{"default", f.DefaultModel, "gpt-4o", "openai"},
		{"by_name", func() (llms.Model, error) { return f.ModelByName("gpt-4-mini") }, "gpt-4-mini", "openai"},
		{"by_name_preferred", func() (llms.Model, error) { return f.ModelByName("gpt-4-unknown", "gpt-41-mini") }, "gpt-41-mini", "azure"},
		{"by_name_fallback", func() (llms.Model, error) { return f.ModelByName("non-existent-model") }, "gpt-4o", "openai"},
		{"by_type_anthropic", func() (llms.Model, error) { return f.ModelByType("ANTHROPIC") }, "claude-sonnet-4-20250514", "anthropic"},
		{"by_type_bedrock", func() (llms.Model, error) { return f.ModelByType("BEDROCK") }, "anthropic.claude-3-5-sonnet-20241022-v2:0", "bedrock"},
		{"assistant", func() (llms.Model, error) { return f.AssistantModel("calculator") }, "gpt-4-mini", "openai"},
		{"assistant_default", func() (llms.Model, error) { return f.AssistantModel("unknown", "gpt-4o") }, "claude-sonnet-4-20250514", "anthropic"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			model, err := tc.get()
			require.NoError(t, err)
			assert.Equal(t, tc.model, model.GetName())
			assert.Equal(t, llms.ProviderType(tc.provider), model.GetProviderType())
		})
	}

	_, err := f.ModelByType("UNKNOWN")
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))
}

func Test_ModelCaching(t *testing.T) {
	created := fakeFactory(t)
	f := loadFactory(t)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.ModelByName("gpt-4-mini")
		}()
		go func() {
			defer wg.Done()
			_, _ = f.ModelByType("ANTHROPIC")
		}()
	}
	wg.Wait()

	m1, err := f.ModelByName("gpt-4-mini")
	require.NoError(t, err)
	m2, err := f.ModelByName("gpt-4-mini")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 2, *created)
}

func Test_LoadConfig(t *testing.T) {
	cfg, err := llmfactory.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers)

	_, err = llmfactory.LoadConfig("testdata/non-existent.yaml")
	require.Error(t, err)

	_, err = llmfactory.LoadConfig("testdata/invalid.yaml")
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))

	_, err = llmfactory.LoadConfig("testdata/noname.yaml")
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))

	_, err = llmfactory.Load("testdata/non-existent.yaml")
	require.Error(t, err)
}

func Test_EmptyConfig(t *testing.T) {
	f := llmfactory.New(&llmfactory.Config{})
	_, err := f.DefaultModel()
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))
}

func Test_CreateLLM(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := &llmfactory.ProviderConfig{
		Name:            "test-provider",
		Token:           "fakekey",
		AvailableModels: []string{"gpt-4"},
		DefaultModel:    "gpt-4",
		OpenAI: llmfactory.OpenAIConfig{
			APIType:    "OPENAI",
			APIVersion: "2024-02-15-preview",
			BaseURL:    "https://example.com",
		},
	}

	for _, typ := range []string{"OPENAI", "OPEN_AI", "AZURE", "AZURE_AD", "PERPLEXITY", "ANTHROPIC", "GOOGLEAI"} {
		cfg.OpenAI.APIType = typ
		model, err := llmfactory.CreateLLM(cfg)
		require.NoError(t, err, typ)
		assert.Equal(t, "gpt-4", model.GetName(), typ)
	}

	cfg.Token = ""
	cfg.OpenAI.APIType = "ANTHROPIC"
	_, err := llmfactory.CreateLLM(cfg)
	require.Error(t, err)
	assert.True(t, chatmodel.IsConfigurationError(err))

	cfg.OpenAI.APIType = "UNSUPPORTED"
	_, err = llmfactory.CreateLLM(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider type")
}

func Test_ProviderConfigFindModel(t *testing.T) {
	cfg := &llmfactory.ProviderConfig{
		AvailableModels: []string{"a", "b"},
		DefaultModel:    "a",
	}
	assert.Equal(t, "b", cfg.FindModel("x", "b"))
	assert.Equal(t, "a", cfg.FindModel("x"))
	assert.Equal(t, "a", cfg.FindModel())
}
