// Package openai implements the providers.Provider adapter for the OpenAI
// chat completions API.
//
// BaseURL includes the version path (e.g., "https://api.openai.com/v1");
// requests go to BaseURL + "/chat/completions". NewCompatibleProvider serves
// self-hosted OpenAI-compatible servers that need no API key.
package openai
